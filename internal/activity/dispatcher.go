package activity

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

const (
	defaultQueueSize   = 1024
	defaultWorkers     = 2
	defaultBaseBackoff = 50 * time.Millisecond
	defaultMaxBackoff  = time.Second
)

var (
	errMissingProducer = errors.New("activity: producer is required")
	errMissingTopic    = errors.New("activity: topic is required")
)

// DispatcherConfig controls the bounded queue and the retry policy.
type DispatcherConfig struct {
	Producer    sarama.SyncProducer
	Topic       string
	QueueSize   int
	Workers     int
	MaxRetry    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Logger      *zap.Logger
}

// Dispatcher publishes board activity to Kafka from a bounded local queue.
// Enqueue never blocks; a full queue drops the record.
type Dispatcher struct {
	producer    sarama.SyncProducer
	topic       string
	maxRetry    int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	logger      *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan BoardActivity
	wg     sync.WaitGroup
}

// NewDispatcher starts the worker pool.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Producer == nil {
		return nil, errMissingProducer
	}
	if cfg.Topic == "" {
		return nil, errMissingTopic
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	baseBackoff := cfg.BaseBackoff
	if baseBackoff <= 0 {
		baseBackoff = defaultBaseBackoff
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	maxRetry := cfg.MaxRetry
	if maxRetry < 0 {
		maxRetry = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Dispatcher{
		producer:    cfg.Producer,
		topic:       cfg.Topic,
		maxRetry:    maxRetry,
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
		logger:      logger,
		queue:       make(chan BoardActivity, queueSize),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.workerLoop(i)
	}
	return d, nil
}

// Enqueue places the record on the local queue. It reports false when the
// queue is full or the dispatcher is closed.
func (d *Dispatcher) Enqueue(record BoardActivity) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- record:
		return true
	default:
		d.logger.Warn("activity queue full, dropping record",
			zap.String("board_id", record.BoardID),
			zap.String("type", string(record.Type)))
		return false
	}
}

// Close stops accepting records and waits for the workers to drain the queue.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) workerLoop(workerID int) {
	defer d.wg.Done()
	for record := range d.queue {
		d.sendWithRetry(workerID, record)
	}
}

func (d *Dispatcher) sendWithRetry(workerID int, record BoardActivity) {
	for attempt := 0; attempt <= d.maxRetry; attempt++ {
		err := d.sendOnce(record)
		if err == nil {
			return
		}
		if attempt == d.maxRetry {
			d.logger.Error("activity send failed, dropping record",
				zap.String("board_id", record.BoardID),
				zap.String("type", string(record.Type)),
				zap.Int("worker", workerID),
				zap.Int("attempts", attempt+1),
				zap.Error(err))
			return
		}
		time.Sleep(d.backoff(attempt))
	}
}

func (d *Dispatcher) backoff(attempt int) time.Duration {
	backoff := d.baseBackoff * time.Duration(1<<attempt)
	if backoff > d.maxBackoff || backoff <= 0 {
		backoff = d.maxBackoff
	}
	return backoff
}

func (d *Dispatcher) sendOnce(record BoardActivity) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	message := &sarama.ProducerMessage{
		Topic: d.topic,
		Key:   sarama.StringEncoder(record.BoardID),
		Value: sarama.ByteEncoder(payload),
	}
	_, _, err = d.producer.SendMessage(message)
	return err
}

// NewSyncProducer connects a synchronous producer that waits for the local broker ack.
func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForLocal
	return sarama.NewSyncProducer(brokers, config)
}
