package kafka

import (
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/IBM/sarama"
	"github.com/studio-arcade/internal/arcade"
	"github.com/studio-arcade/internal/purchase"
)

const (
	TopicArcadeEvents = "arcade-events"
)

// EventType represents the type of arcade event
type EventType string

const (
	EventScoreSubmitted   EventType = "score_submitted"
	EventNicknameClaimed  EventType = "nickname_claimed"
	EventPurchaseRecorded EventType = "purchase_recorded"
)

// Event represents an arcade event for analytics
type Event struct {
	Type      EventType `json:"type"`
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// ScoreSubmittedData contains data for score submission events
type ScoreSubmittedData struct {
	GameID   string `json:"gameId"`
	Nickname string `json:"nickname"`
	Score    int64  `json:"score"`
	MadeTop5 bool   `json:"madeTop5"`
}

// NicknameClaimedData contains data for nickname claim events
type NicknameClaimedData struct {
	Nickname string `json:"nickname"`
}

// PurchaseRecordedData contains data for purchase events
type PurchaseRecordedData struct {
	PurchaseID  string `json:"purchaseId"`
	UserID      string `json:"userId"`
	Item        string `json:"item"`
	AmountCents int64  `json:"amountCents"`
}

// Producer handles Kafka event production
type Producer struct {
	producer sarama.SyncProducer
	enabled  bool
}

// NewProducer creates a new Kafka producer
func NewProducer() (*Producer, error) {
	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		brokers = "localhost:9092"
	}

	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3

	producer, err := sarama.NewSyncProducer([]string{brokers}, config)
	if err != nil {
		log.Printf("Kafka producer not available: %v (analytics disabled)", err)
		return &Producer{enabled: false}, nil
	}

	log.Println("Kafka producer connected")
	return &Producer{producer: producer, enabled: true}, nil
}

// EmitScoreSubmitted emits a score submission event
func (p *Producer) EmitScoreSubmitted(gameID string, entry arcade.Entry, madeTop5 bool) {
	if !p.enabled {
		return
	}

	p.send(Event{
		Type:      EventScoreSubmitted,
		Key:       gameID,
		Timestamp: time.Now(),
		Data: ScoreSubmittedData{
			GameID:   gameID,
			Nickname: entry.Nickname,
			Score:    entry.Score,
			MadeTop5: madeTop5,
		},
	})
}

// EmitNicknameClaimed emits a nickname claim event
func (p *Producer) EmitNicknameClaimed(nick string) {
	if !p.enabled {
		return
	}

	p.send(Event{
		Type:      EventNicknameClaimed,
		Key:       nick,
		Timestamp: time.Now(),
		Data:      NicknameClaimedData{Nickname: nick},
	})
}

// EmitPurchaseRecorded emits a purchase event
func (p *Producer) EmitPurchaseRecorded(rec purchase.Purchase) {
	if !p.enabled {
		return
	}

	p.send(Event{
		Type:      EventPurchaseRecorded,
		Key:       rec.UserID,
		Timestamp: time.Now(),
		Data: PurchaseRecordedData{
			PurchaseID:  rec.ID,
			UserID:      rec.UserID,
			Item:        rec.Item,
			AmountCents: rec.AmountCents,
		},
	})
}

// send sends an event to Kafka
func (p *Producer) send(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error marshaling event: %v", err)
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: TopicArcadeEvents,
		Key:   sarama.StringEncoder(event.Key),
		Value: sarama.ByteEncoder(data),
	}

	_, _, err = p.producer.SendMessage(msg)
	if err != nil {
		log.Printf("Error sending event to Kafka: %v", err)
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// IsEnabled returns whether Kafka is enabled
func (p *Producer) IsEnabled() bool {
	return p.enabled
}
