package bridge

import (
	"encoding/json"
	"time"

	"github.com/CharlyBGood/planificadorfinanciero/internal/gateway"
)

const (
	EntityTransaction = "transaction"
	EntityObjective   = "objective"
)

// ChangeMessage is the envelope published for every local change. Origin
// carries the publishing instance id so consumers can drop their own
// echoes.
type ChangeMessage struct {
	Origin      string                      `json:"origin"`
	Entity      string                      `json:"entity"`
	Kind        string                      `json:"kind"`
	Transaction *gateway.TransactionRecord  `json:"transaction,omitempty"`
	Objective   *gateway.ObjectiveRecord    `json:"objective,omitempty"`
	Timestamp   time.Time                   `json:"timestamp"`
}

func NewTransactionMessage(origin string, ev gateway.TransactionEvent) *ChangeMessage {
	rec := gateway.TransactionToRecord(ev.Transaction)
	return &ChangeMessage{
		Origin:      origin,
		Entity:      EntityTransaction,
		Kind:        string(ev.Kind),
		Transaction: &rec,
		Timestamp:   time.Now().UTC(),
	}
}

func NewObjectiveMessage(origin string, ev gateway.ObjectiveEvent) *ChangeMessage {
	rec := gateway.ObjectiveToRecord(ev.Objective)
	return &ChangeMessage{
		Origin:    origin,
		Entity:    EntityObjective,
		Kind:      string(ev.Kind),
		Objective: &rec,
		Timestamp: time.Now().UTC(),
	}
}

func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
