package net

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mosaicnetworks/forkchain/src/ledger"
)

// MessageType identifies the payload of a NetworkMessage.
type MessageType string

const (
	// BlockProposal carries a Block.
	BlockProposal MessageType = "block_proposal"
	// TransactionBroadcast carries a Transaction.
	TransactionBroadcast MessageType = "transaction_broadcast"
	// ChainRequest carries a ChainRequestPayload.
	ChainRequest MessageType = "chain_request"
	// ChainResponse carries a list of Blocks.
	ChainResponse MessageType = "chain_response"
	// Heartbeat carries a HeartbeatPayload.
	Heartbeat MessageType = "heartbeat"
	// PartitionHeal announces that the sender's partition was healed.
	PartitionHeal MessageType = "partition_heal"
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case BlockProposal, TransactionBroadcast, ChainRequest, ChainResponse, Heartbeat, PartitionHeal:
		return true
	}
	return false
}

// NetworkMessage is the envelope exchanged between nodes. An empty ReceiverID
// means broadcast.
type NetworkMessage struct {
	ID         string          `json:"id"`
	SenderID   string          `json:"sender_id"`
	ReceiverID string          `json:"receiver_id,omitempty"`
	Type       MessageType     `json:"message_type"`
	Payload    json.RawMessage `json:"payload"`
	Timestamp  float64         `json:"timestamp"`
}

// ChainRequestPayload asks for main chain blocks starting at FromHeight.
type ChainRequestPayload struct {
	FromHeight int `json:"from_height"`
}

// HeartbeatPayload advertises the sender's tip.
type HeartbeatPayload struct {
	Height int    `json:"height"`
	Hash   string `json:"hash"`
}

func newMessage(sender, receiver string, t MessageType, payload interface{}) (*NetworkMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &NetworkMessage{
		ID:         uuid.New().String(),
		SenderID:   sender,
		ReceiverID: receiver,
		Type:       t,
		Payload:    raw,
		Timestamp:  ledger.Now(),
	}, nil
}

// NewBlockProposal ...
func NewBlockProposal(sender string, block *ledger.Block) (*NetworkMessage, error) {
	return newMessage(sender, "", BlockProposal, block)
}

// NewTransactionBroadcast ...
func NewTransactionBroadcast(sender string, tx *ledger.Transaction) (*NetworkMessage, error) {
	return newMessage(sender, "", TransactionBroadcast, tx)
}

// NewChainRequest ...
func NewChainRequest(sender, receiver string, fromHeight int) (*NetworkMessage, error) {
	return newMessage(sender, receiver, ChainRequest, ChainRequestPayload{FromHeight: fromHeight})
}

// NewChainResponse ...
func NewChainResponse(sender, receiver string, blocks []*ledger.Block) (*NetworkMessage, error) {
	if blocks == nil {
		blocks = []*ledger.Block{}
	}
	return newMessage(sender, receiver, ChainResponse, blocks)
}

// NewHeartbeat ...
func NewHeartbeat(sender string, tip *ledger.Block) (*NetworkMessage, error) {
	return newMessage(sender, "", Heartbeat, HeartbeatPayload{Height: tip.Height, Hash: tip.Hash})
}

// NewPartitionHeal ...
func NewPartitionHeal(sender string) (*NetworkMessage, error) {
	return newMessage(sender, "", PartitionHeal, struct{}{})
}

// IsBroadcast ...
func (m *NetworkMessage) IsBroadcast() bool {
	return m.ReceiverID == ""
}

func (m *NetworkMessage) expect(t MessageType) error {
	if m.Type != t {
		return fmt.Errorf("message %s is %s, not %s", m.ID, m.Type, t)
	}
	return nil
}

// Block decodes a block_proposal payload.
func (m *NetworkMessage) Block() (*ledger.Block, error) {
	if err := m.expect(BlockProposal); err != nil {
		return nil, err
	}
	b := new(ledger.Block)
	if err := b.Unmarshal(m.Payload); err != nil {
		return nil, err
	}
	return b, nil
}

// Transaction decodes a transaction_broadcast payload.
func (m *NetworkMessage) Transaction() (*ledger.Transaction, error) {
	if err := m.expect(TransactionBroadcast); err != nil {
		return nil, err
	}
	tx := new(ledger.Transaction)
	if err := tx.Unmarshal(m.Payload); err != nil {
		return nil, err
	}
	return tx, nil
}

// ChainRequest decodes a chain_request payload.
func (m *NetworkMessage) ChainRequest() (ChainRequestPayload, error) {
	var p ChainRequestPayload
	if err := m.expect(ChainRequest); err != nil {
		return p, err
	}
	err := json.Unmarshal(m.Payload, &p)
	return p, err
}

// Blocks decodes a chain_response payload.
func (m *NetworkMessage) Blocks() ([]*ledger.Block, error) {
	if err := m.expect(ChainResponse); err != nil {
		return nil, err
	}
	var blocks []*ledger.Block
	if err := json.Unmarshal(m.Payload, &blocks); err != nil {
		return nil, err
	}
	for _, b := range blocks {
		if b.Transactions == nil {
			b.Transactions = []*ledger.Transaction{}
		}
	}
	return blocks, nil
}

// Heartbeat decodes a heartbeat payload.
func (m *NetworkMessage) Heartbeat() (HeartbeatPayload, error) {
	var p HeartbeatPayload
	if err := m.expect(Heartbeat); err != nil {
		return p, err
	}
	err := json.Unmarshal(m.Payload, &p)
	return p, err
}

// Marshal returns the JSON encoding of the message.
func (m *NetworkMessage) Marshal() ([]byte, error) {
	bf := bytes.NewBuffer([]byte{})
	enc := json.NewEncoder(bf)
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	return bf.Bytes(), nil
}

// Unmarshal decodes a JSON encoded message and checks its type.
func (m *NetworkMessage) Unmarshal(data []byte) error {
	bf := bytes.NewBuffer(data)
	dec := json.NewDecoder(bf)
	if err := dec.Decode(m); err != nil {
		return err
	}
	if !m.Type.Valid() {
		return fmt.Errorf("unknown message type %q", m.Type)
	}
	return nil
}
