package service

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/mosaicnetworks/forkchain/src/blockchain"
	"github.com/mosaicnetworks/forkchain/src/ledger"
	"github.com/mosaicnetworks/forkchain/src/node"
	"github.com/sirupsen/logrus"
)

// Service exposes a node over a JSON HTTP API.
type Service struct {
	bindAddress string
	node        *node.Node
	router      *mux.Router
	server      *http.Server
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, n *node.Node, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		router:      mux.NewRouter(),
		logger:      logger,
	}

	service.registerHandlers()

	service.server = &http.Server{
		Addr:    bindAddress,
		Handler: service.router,
	}

	return &service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering API handlers")
	s.router.HandleFunc("/stats", s.makeHandler(s.GetStats)).Methods("GET")
	s.router.HandleFunc("/chain", s.makeHandler(s.GetChain)).Methods("GET")
	s.router.HandleFunc("/blocks", s.makeHandler(s.GetBlocks)).Methods("GET")
	s.router.HandleFunc("/block/{height:[0-9]+}", s.makeHandler(s.GetBlock)).Methods("GET")
	s.router.HandleFunc("/balance/{address}", s.makeHandler(s.GetBalance)).Methods("GET")
	s.router.HandleFunc("/pending", s.makeHandler(s.GetPending)).Methods("GET")
	s.router.HandleFunc("/tx", s.makeHandler(s.PostTransaction)).Methods("POST")
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Handler returns the router, for embedding or tests.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Serve calls ListenAndServe. This is a blocking call.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving API")

	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		s.logger.Error(err)
	}
}

// Close stops the HTTP server.
func (s *Service) Close() error {
	return s.server.Close()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.node.GetStats())
}

// GetChain returns the chain summary of the node.
func (s *Service) GetChain(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.node.ChainInfo())
}

// GetBlocks returns main chain blocks from the "from" query parameter on.
func (s *Service) GetBlocks(w http.ResponseWriter, r *http.Request) {
	from := 0
	if param := r.URL.Query().Get("from"); param != "" {
		h, err := strconv.Atoi(param)
		if err != nil {
			s.logger.WithError(err).Errorf("Parsing from parameter %s", param)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		from = h
	}

	writeJSON(w, http.StatusOK, s.node.Blockchain().BlocksFrom(from))
}

// BlockResponse is a main chain block along with the Merkle root of its
// transactions.
type BlockResponse struct {
	*ledger.Block
	MerkleRoot string `json:"merkle_root"`
}

// GetBlock ...
func (s *Service) GetBlock(w http.ResponseWriter, r *http.Request) {
	param := mux.Vars(r)["height"]

	height, err := strconv.Atoi(param)
	if err != nil {
		s.logger.WithError(err).Errorf("Parsing height parameter %s", param)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	block, ok := s.node.Blockchain().BlockAt(height)
	if !ok {
		http.Error(w, "no block at height "+param, http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, BlockResponse{
		Block:      block,
		MerkleRoot: block.MerkleRoot(),
	})
}

type balanceResponse struct {
	Address string  `json:"address"`
	Balance float64 `json:"balance"`
}

// GetBalance ...
func (s *Service) GetBalance(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["address"]
	writeJSON(w, http.StatusOK, balanceResponse{
		Address: addr,
		Balance: s.node.Balance(addr),
	})
}

// GetPending returns the pending pool in admission order.
func (s *Service) GetPending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.node.Blockchain().PendingTransactions(-1))
}

// TransactionRequest is the body of POST /tx.
type TransactionRequest struct {
	Receiver string  `json:"receiver"`
	Amount   float64 `json:"amount"`
}

// PostTransaction submits a payment from the node to the requested receiver.
func (s *Service) PostTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Receiver == "" {
		http.Error(w, "receiver is required", http.StatusBadRequest)
		return
	}

	tx, err := s.node.SubmitTransaction(req.Receiver, req.Amount)
	if err != nil {
		status := http.StatusInternalServerError
		if _, ok := err.(blockchain.TransactionErr); ok {
			status = http.StatusBadRequest
		}
		s.logger.WithError(err).Debug("Submitting transaction")
		http.Error(w, err.Error(), status)
		return
	}

	writeJSON(w, http.StatusCreated, tx)
}
