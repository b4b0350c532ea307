package kafka

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"sync"

	"github.com/IBM/sarama"
)

// AnalyticsMetrics holds aggregated analytics data
type AnalyticsMetrics struct {
	TotalSubmissions   int64            `json:"totalSubmissions"`
	TotalClaims        int64            `json:"totalClaims"`
	TotalPurchases     int64            `json:"totalPurchases"`
	RevenueCents       int64            `json:"revenueCents"`
	SubmissionsPerGame map[string]int   `json:"submissionsPerGame"`
	SubmissionsPerDay  map[string]int   `json:"submissionsPerDay"`
	BestScores         map[string]int64 `json:"bestScores"`
	SubmitterCounts    map[string]int   `json:"submitterCounts"`
	mu                 sync.RWMutex
}

// Consumer handles Kafka event consumption for analytics
type Consumer struct {
	consumer sarama.ConsumerGroup
	metrics  *AnalyticsMetrics
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewConsumer creates a new Kafka consumer
func NewConsumer() (*Consumer, error) {
	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		brokers = "localhost:9092"
	}

	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	config.Consumer.Offsets.Initial = sarama.OffsetOldest

	consumer, err := sarama.NewConsumerGroup([]string{brokers}, "arcade-analytics", config)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Consumer{
		consumer: consumer,
		metrics: &AnalyticsMetrics{
			SubmissionsPerGame: make(map[string]int),
			SubmissionsPerDay:  make(map[string]int),
			BestScores:         make(map[string]int64),
			SubmitterCounts:    make(map[string]int),
		},
		ctx:    ctx,
		cancel: cancel,
	}

	return c, nil
}

// Start begins consuming events
func (c *Consumer) Start() {
	go func() {
		for {
			if err := c.consumer.Consume(c.ctx, []string{TopicArcadeEvents}, c); err != nil {
				log.Printf("Consumer error: %v", err)
			}
			if c.ctx.Err() != nil {
				return
			}
		}
	}()
	log.Println("Kafka consumer started")
}

// Setup is called at the beginning of a new session
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup is called at the end of a session
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim processes messages from a partition
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		c.processMessage(msg)
		session.MarkMessage(msg, "")
	}
	return nil
}

// processMessage handles a single event message
func (c *Consumer) processMessage(msg *sarama.ConsumerMessage) {
	var event Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		log.Printf("Error unmarshaling event: %v", err)
		return
	}

	c.metrics.mu.Lock()
	defer c.metrics.mu.Unlock()

	switch event.Type {
	case EventScoreSubmitted:
		c.handleScoreSubmitted(event)
	case EventNicknameClaimed:
		c.metrics.TotalClaims++
	case EventPurchaseRecorded:
		c.handlePurchaseRecorded(event)
	}
}

// handleScoreSubmitted processes score submission events
func (c *Consumer) handleScoreSubmitted(event Event) {
	data, ok := event.Data.(map[string]interface{})
	if !ok {
		return
	}

	c.metrics.TotalSubmissions++

	dayKey := event.Timestamp.Format("2006-01-02")
	c.metrics.SubmissionsPerDay[dayKey]++

	gameID, _ := data["gameId"].(string)
	if gameID != "" {
		c.metrics.SubmissionsPerGame[gameID]++
	}

	if nickname, ok := data["nickname"].(string); ok && nickname != "" {
		c.metrics.SubmitterCounts[nickname]++
	}

	if score, ok := data["score"].(float64); ok && gameID != "" {
		if int64(score) > c.metrics.BestScores[gameID] {
			c.metrics.BestScores[gameID] = int64(score)
		}
	}
}

// handlePurchaseRecorded processes purchase events
func (c *Consumer) handlePurchaseRecorded(event Event) {
	data, ok := event.Data.(map[string]interface{})
	if !ok {
		return
	}

	c.metrics.TotalPurchases++

	if amount, ok := data["amountCents"].(float64); ok {
		c.metrics.RevenueCents += int64(amount)
	}
}

// GetMetrics returns a copy of the current metrics
func (c *Consumer) GetMetrics() *AnalyticsMetrics {
	c.metrics.mu.RLock()
	defer c.metrics.mu.RUnlock()

	// Return a copy to avoid race conditions
	copy := &AnalyticsMetrics{
		TotalSubmissions:   c.metrics.TotalSubmissions,
		TotalClaims:        c.metrics.TotalClaims,
		TotalPurchases:     c.metrics.TotalPurchases,
		RevenueCents:       c.metrics.RevenueCents,
		SubmissionsPerGame: make(map[string]int),
		SubmissionsPerDay:  make(map[string]int),
		BestScores:         make(map[string]int64),
		SubmitterCounts:    make(map[string]int),
	}

	for k, v := range c.metrics.SubmissionsPerGame {
		copy.SubmissionsPerGame[k] = v
	}
	for k, v := range c.metrics.SubmissionsPerDay {
		copy.SubmissionsPerDay[k] = v
	}
	for k, v := range c.metrics.BestScores {
		copy.BestScores[k] = v
	}
	for k, v := range c.metrics.SubmitterCounts {
		copy.SubmitterCounts[k] = v
	}

	return copy
}

// GetTopSubmitter returns the nickname with the most submissions
func (c *Consumer) GetTopSubmitter() string {
	c.metrics.mu.RLock()
	defer c.metrics.mu.RUnlock()

	maxCount := 0
	top := ""
	for nick, count := range c.metrics.SubmitterCounts {
		if count > maxCount {
			maxCount = count
			top = nick
		}
	}
	return top
}

// Stop stops the consumer
func (c *Consumer) Stop() {
	c.cancel()
	c.consumer.Close()
}
