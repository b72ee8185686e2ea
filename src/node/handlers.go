package node

import (
	"sort"

	"github.com/mosaicnetworks/forkchain/src/blockchain"
	"github.com/mosaicnetworks/forkchain/src/consensus"
	"github.com/mosaicnetworks/forkchain/src/ledger"
	"github.com/mosaicnetworks/forkchain/src/net"
	"github.com/sirupsen/logrus"
)

func (n *Node) processMessage(msg *net.NetworkMessage) {
	if msg == nil || msg.SenderID == n.id {
		return
	}
	if msg.ReceiverID != "" && msg.ReceiverID != n.id {
		return
	}

	var err error
	switch msg.Type {
	case net.BlockProposal:
		err = n.processBlockProposal(msg)
	case net.TransactionBroadcast:
		err = n.processTransaction(msg)
	case net.ChainRequest:
		err = n.processChainRequest(msg)
	case net.ChainResponse:
		err = n.processChainResponse(msg)
	case net.Heartbeat:
		err = n.processHeartbeat(msg)
	case net.PartitionHeal:
		n.logger.WithField("from", msg.SenderID).Debug("Peer healed partition")
		n.requestChain(msg.SenderID)
	default:
		n.logger.WithField("type", msg.Type).Warn("Unknown message type")
	}

	if err != nil {
		n.logger.WithFields(logrus.Fields{
			"type": msg.Type,
			"from": msg.SenderID,
		}).WithError(err).Debug("Processing message")
	}
}

func (n *Node) processBlockProposal(msg *net.NetworkMessage) error {
	block, err := msg.Block()
	if err != nil {
		return err
	}

	res, err := n.receiveBlock(block, msg.SenderID)

	n.event("block_received", logrus.Fields{
		"from":     msg.SenderID,
		"height":   block.Height,
		"hash":     block.Hash,
		"proposer": block.ProposerID,
		"accepted": err == nil,
		"result":   res.String(),
	})

	if err == nil && res == blockchain.Buffered {
		n.requestChain(msg.SenderID)
	}
	return err
}

// receiveBlock validates and adds one block received from sender.
func (n *Node) receiveBlock(block *ledger.Block, sender string) (blockchain.Result, error) {
	if n.conf.ValidateInbound && !block.IsGenesis() && !n.validProposal(block, sender) {
		n.stats.update(func(s *Stats) { s.BlocksRejected++ })
		return blockchain.Known, errInvalidBlock{hash: block.Hash, proposer: block.ProposerID}
	}

	n.coreLock.Lock()
	res, err := n.chain.AddBlock(block)
	n.coreLock.Unlock()

	n.stats.update(func(s *Stats) {
		if err != nil {
			s.BlocksRejected++
			return
		}
		switch res {
		case blockchain.Extended, blockchain.SideBranch:
			s.BlocksReceived++
		case blockchain.Reorganized:
			s.BlocksReceived++
			s.ForksResolved++
		case blockchain.Buffered:
			s.BlocksBuffered++
		}
	})

	return res, err
}

// validProposal runs the consensus block check. Proof-of-work blocks with a
// known parent are held to the difficulty of their own height.
func (n *Node) validProposal(block *ledger.Block, sender string) bool {
	if pow, ok := n.algo.(*consensus.ProofOfWork); ok {
		if branch := n.chain.BranchTo(block.PrevHash); branch != nil {
			return pow.ValidateOnBranch(branch, block)
		}
	}
	return n.algo.ValidateBlock(block, sender)
}

func (n *Node) processTransaction(msg *net.NetworkMessage) error {
	tx, err := msg.Transaction()
	if err != nil {
		return err
	}

	if !tx.VerifySignature(tx.Sender) {
		n.stats.update(func(s *Stats) { s.TxRejected++ })
		return errBadSignature{hash: tx.Hash, sender: tx.Sender}
	}

	n.coreLock.Lock()
	err = n.chain.AddPendingTransaction(tx)
	n.coreLock.Unlock()

	if err != nil {
		n.stats.update(func(s *Stats) { s.TxRejected++ })
		return err
	}
	n.stats.update(func(s *Stats) { s.TxReceived++ })

	n.event("transaction_received", logrus.Fields{
		"from":    msg.SenderID,
		"tx_hash": tx.Hash,
		"amount":  tx.Amount,
	})
	return nil
}

func (n *Node) processChainRequest(msg *net.NetworkMessage) error {
	req, err := msg.ChainRequest()
	if err != nil {
		return err
	}

	blocks := n.chain.BlocksFrom(req.FromHeight)
	resp, err := net.NewChainResponse(n.id, msg.SenderID, blocks)
	if err != nil {
		return err
	}
	n.trans.Send(msg.SenderID, resp)
	return nil
}

// processChainResponse applies the received blocks lowest height first, so
// that each parent is known before its child arrives.
func (n *Node) processChainResponse(msg *net.NetworkMessage) error {
	blocks, err := msg.Blocks()
	if err != nil {
		return err
	}
	n.stats.update(func(s *Stats) { s.ChainResponses++ })

	sort.SliceStable(blocks, func(i, j int) bool {
		return blocks[i].Height < blocks[j].Height
	})

	added := 0
	for _, b := range blocks {
		if b.IsGenesis() {
			continue
		}
		res, err := n.receiveBlock(b, b.ProposerID)
		if err != nil {
			n.logger.WithError(err).WithField("height", b.Height).Debug("Chain response block")
			continue
		}
		if res != blockchain.Known {
			added++
		}
	}

	n.logger.WithFields(logrus.Fields{
		"from":   msg.SenderID,
		"blocks": len(blocks),
		"added":  added,
		"height": n.chain.LatestBlock().Height,
	}).Debug("Chain response applied")
	return nil
}

func (n *Node) processHeartbeat(msg *net.NetworkMessage) error {
	hb, err := msg.Heartbeat()
	if err != nil {
		return err
	}
	n.stats.update(func(s *Stats) { s.Heartbeats++ })

	if hb.Height > n.chain.LatestBlock().Height {
		n.requestChain(msg.SenderID)
		return nil
	}
	if _, known := n.chain.GetBlock(hb.Hash); !known && hb.Height == n.chain.LatestBlock().Height {
		// Same height, different tip: fetch the competing branch.
		n.requestChain(msg.SenderID)
	}
	return nil
}
