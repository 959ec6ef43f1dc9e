// Команда dlq-reprocess перечитывает DLQ покупок и переотправляет события
// purchase.created в основной topic. Каждая покупка отправляется не больше
// одного раза за запуск. По умолчанию работает в режиме dry-run.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/config"
	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/marketplace/internal/service/outbox"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
)

var errUnrecognized = errors.New("unrecognized dlq message")

type replayConfig struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
	purchaseIDs []int64
}

// purchaseReplay — событие покупки, восстановленное из DLQ.
type purchaseReplay struct {
	purchaseID int64
	topic      string
	key        string
	value      []byte
}

type replayStats struct {
	scanned    int
	replayed   int
	duplicates int
	filtered   int
	invalid    int
}

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

type replayProducer interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

type saramaConsumerAdapter struct {
	consumer sarama.Consumer
}

func (a saramaConsumerAdapter) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	pc, err := a.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func (a saramaConsumerAdapter) Close() error {
	if a.consumer == nil {
		return nil
	}
	return a.consumer.Close()
}

var newReplayDependencies = func(cfg replayConfig) (offsetClient, partitionConsumerSource, replayProducer, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, consumerConfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create kafka client: %w", err)
	}
	rawConsumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	consumer := saramaConsumerAdapter{consumer: rawConsumer}
	if !cfg.execute {
		return client, consumer, nil, nil
	}

	producer, err := sarama.NewSyncProducer(cfg.brokers, kafka.NewProducerConfig())
	if err != nil {
		_ = consumer.Close()
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return client, consumer, producer, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	if err := config.LoadEnvFiles(".env"); err != nil {
		fail("load .env: %v", err)
	}

	cfg, err := readConfig(os.Args[1:], os.Stderr, os.Getenv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fail("%v", err)
	}

	if err := run(context.Background(), cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func readConfig(args []string, output io.Writer, getenv func(string) string) (replayConfig, error) {
	var (
		brokersRaw     string
		purchaseIDsRaw string
		cfg            replayConfig
	)

	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: "+config.EnvKafkaBrokers+")")
	fs.StringVar(&cfg.sourceTopic, "source-topic", envOr(getenv, config.EnvKafkaDLQTopic, kafka.TopicDeadLetterQueue), "DLQ source topic")
	fs.StringVar(&cfg.targetTopic, "target-topic", envOr(getenv, config.EnvKafkaPurchaseTopic, kafka.TopicPurchaseEvents), "purchase events topic")
	fs.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of DLQ messages to scan")
	fs.BoolVar(&cfg.execute, "execute", false, "publish events; default is dry-run")
	fs.BoolVar(&cfg.fromNewest, "from-newest", false, "scan the latest messages of each partition")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "stop reading a partition after this long without messages")
	fs.StringVar(&purchaseIDsRaw, "purchase-ids", "", "replay only these purchase ids (comma-separated)")
	if err := fs.Parse(args); err != nil {
		return replayConfig{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = getenv(config.EnvKafkaBrokers)
	}
	cfg.brokers = config.SplitList(brokersRaw)

	for _, raw := range config.SplitList(purchaseIDsRaw) {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return replayConfig{}, fmt.Errorf("invalid purchase id %q", raw)
		}
		cfg.purchaseIDs = append(cfg.purchaseIDs, id)
	}

	switch {
	case len(cfg.brokers) == 0:
		return replayConfig{}, fmt.Errorf("kafka brokers are required (-brokers or %s)", config.EnvKafkaBrokers)
	case strings.TrimSpace(cfg.sourceTopic) == "":
		return replayConfig{}, errors.New("source-topic is required")
	case strings.TrimSpace(cfg.targetTopic) == "":
		return replayConfig{}, errors.New("target-topic is required")
	case cfg.sourceTopic == cfg.targetTopic:
		return replayConfig{}, errors.New("source-topic and target-topic must differ")
	case cfg.limit <= 0:
		return replayConfig{}, errors.New("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return replayConfig{}, errors.New("idle-timeout must be > 0")
	}
	return cfg, nil
}

func envOr(getenv func(string) string, key, fallback string) string {
	if v := strings.TrimSpace(getenv(key)); v != "" {
		return v
	}
	return fallback
}

func run(ctx context.Context, cfg replayConfig) error {
	client, consumer, producer, err := newReplayDependencies(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if producer != nil {
			_ = producer.Close()
		}
		if consumer != nil {
			_ = consumer.Close()
		}
		if client != nil {
			_ = client.Close()
		}
	}()

	r, err := newReplayer(cfg, client, consumer, producer)
	if err != nil {
		return err
	}
	return r.run(ctx)
}

// replayer читает DLQ по партициям и переотправляет покупки.
type replayer struct {
	cfg      replayConfig
	client   offsetClient
	consumer partitionConsumerSource
	producer replayProducer
	logger   *log.Entry

	only  map[int64]struct{}
	seen  map[int64]struct{}
	stats replayStats
}

func newReplayer(cfg replayConfig, client offsetClient, consumer partitionConsumerSource, producer replayProducer) (*replayer, error) {
	if client == nil || consumer == nil {
		return nil, errors.New("kafka client and consumer are required")
	}
	if cfg.execute && producer == nil {
		return nil, errors.New("producer is required in execute mode")
	}

	r := &replayer{
		cfg:      cfg,
		client:   client,
		consumer: consumer,
		producer: producer,
		logger:   log.WithField("component", "dlq-reprocess"),
		seen:     make(map[int64]struct{}),
	}
	if len(cfg.purchaseIDs) > 0 {
		r.only = make(map[int64]struct{}, len(cfg.purchaseIDs))
		for _, id := range cfg.purchaseIDs {
			r.only[id] = struct{}{}
		}
	}
	return r, nil
}

func (r *replayer) run(ctx context.Context) error {
	r.logger.WithFields(log.Fields{
		"source_topic": r.cfg.sourceTopic,
		"target_topic": r.cfg.targetTopic,
		"limit":        r.cfg.limit,
		"execute":      r.cfg.execute,
		"from_newest":  r.cfg.fromNewest,
		"purchase_ids": r.cfg.purchaseIDs,
	}).Info("starting dlq replay")

	partitions, err := r.client.Partitions(r.cfg.sourceTopic)
	if err != nil {
		return fmt.Errorf("get partitions for topic %s: %w", r.cfg.sourceTopic, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		budget := r.cfg.limit - r.stats.scanned
		if budget <= 0 {
			break
		}
		if err := r.readPartition(ctx, partition, budget); err != nil {
			return err
		}
	}

	mode := "dry-run"
	if r.cfg.execute {
		mode = "execute"
	}
	r.logger.WithFields(log.Fields{
		"mode":       mode,
		"scanned":    r.stats.scanned,
		"replayed":   r.stats.replayed,
		"duplicates": r.stats.duplicates,
		"filtered":   r.stats.filtered,
		"invalid":    r.stats.invalid,
	}).Info("dlq replay finished")
	return nil
}

// window возвращает полуинтервал [start, end) смещений партиции для чтения.
func (r *replayer) window(partition int32, budget int) (int64, int64, error) {
	oldest, err := r.client.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return 0, 0, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := r.client.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return 0, 0, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	start := oldest
	if r.cfg.fromNewest {
		start = max(oldest, newest-int64(budget))
	}
	return start, newest, nil
}

// readPartition читает не больше budget сообщений, пока не дойдёт до конца
// окна или не истечёт idle-timeout.
func (r *replayer) readPartition(ctx context.Context, partition int32, budget int) error {
	start, end, err := r.window(partition, budget)
	if err != nil || start >= end {
		return err
	}

	pc, err := r.consumer.ConsumePartition(r.cfg.sourceTopic, partition, start)
	if err != nil {
		return fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(r.cfg.idleTimeout)
	defer idle.Stop()

	errs := pc.Errors()
	for read := 0; read < budget; {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle.C:
			return nil
		case cerr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if cerr != nil {
				return fmt.Errorf("partition %d consumer error: %w", partition, cerr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= end {
				return nil
			}
			idle.Reset(r.cfg.idleTimeout)
			read++
			r.stats.scanned++
			if err := r.handle(msg); err != nil {
				return err
			}
			if msg.Offset+1 >= end {
				return nil
			}
		}
	}
	return nil
}

func (r *replayer) handle(msg *sarama.ConsumerMessage) error {
	entry := r.logger.WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset})

	replay, err := decodePurchaseReplay(msg, r.cfg.targetTopic)
	if err != nil {
		r.stats.invalid++
		entry.WithError(err).Warn("skip dlq message")
		return nil
	}
	entry = entry.WithField("purchase_id", replay.purchaseID)

	if r.only != nil {
		if _, ok := r.only[replay.purchaseID]; !ok {
			r.stats.filtered++
			return nil
		}
	}
	if _, dup := r.seen[replay.purchaseID]; dup {
		r.stats.duplicates++
		entry.Debug("purchase already replayed in this run")
		return nil
	}
	r.seen[replay.purchaseID] = struct{}{}

	if !r.cfg.execute {
		r.stats.replayed++
		entry.WithField("target_topic", replay.topic).Info("dlq replay candidate")
		return nil
	}
	if err := publishReplay(r.producer, replay); err != nil {
		return fmt.Errorf("replay purchase %d: %w", replay.purchaseID, err)
	}
	r.stats.replayed++
	return nil
}

func publishReplay(producer replayProducer, replay purchaseReplay) error {
	if producer == nil {
		return errors.New("producer is nil")
	}
	_, _, err := producer.SendMessage(&sarama.ProducerMessage{
		Topic:     replay.topic,
		Key:       sarama.StringEncoder(replay.key),
		Value:     sarama.ByteEncoder(replay.value),
		Timestamp: time.Now().UTC(),
		Headers: []sarama.RecordHeader{
			{Key: []byte(kafka.HeaderEventType), Value: []byte(domain.EventPurchaseCreated)},
		},
	})
	return err
}

// decodePurchaseReplay достаёт событие purchase.created из DLQ-сообщения
// consumer-а или outbox worker-а. Восстановленное значение проверяется тем же
// парсером, что и живые события.
func decodePurchaseReplay(msg *sarama.ConsumerMessage, defaultTopic string) (purchaseReplay, error) {
	var replay purchaseReplay

	var consumerLetter kafka.ConsumerDeadLetter
	if err := json.Unmarshal(msg.Value, &consumerLetter); err == nil && consumerLetter.OriginalValue != "" {
		replay = purchaseReplay{
			topic: firstNonEmpty(strings.TrimSpace(consumerLetter.OriginalTopic), defaultTopic),
			key:   consumerLetter.OriginalKey,
			value: []byte(consumerLetter.OriginalValue),
		}
	} else {
		value, key, err := rebuildOutboxEvent(msg.Value)
		if err != nil {
			return purchaseReplay{}, err
		}
		replay = purchaseReplay{topic: defaultTopic, key: key, value: value}
	}

	_, payload, err := kafka.ParsePurchaseCreated(&sarama.ConsumerMessage{Value: replay.value})
	if err != nil {
		return purchaseReplay{}, fmt.Errorf("not a purchase event: %w", err)
	}
	replay.purchaseID = payload.PurchaseID
	if replay.key == "" {
		replay.key = strconv.FormatInt(payload.PurchaseID, 10)
	}
	return replay, nil
}

// rebuildOutboxEvent собирает исходный конверт из outbox.DeadLetter.
func rebuildOutboxEvent(raw []byte) ([]byte, string, error) {
	var envelope kafka.Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope.Payload) == 0 {
		return nil, "", errUnrecognized
	}

	var letter outbox.DeadLetter
	if err := json.Unmarshal(envelope.Payload, &letter); err != nil {
		return nil, "", fmt.Errorf("decode outbox dead letter: %w", err)
	}
	if len(letter.Payload) == 0 || string(letter.Payload) == "null" {
		return nil, "", errors.New("outbox dead letter does not contain original event payload")
	}

	original := letter.Message()
	event := kafka.Envelope{
		ID:            firstNonEmpty(original.ID, envelope.ID),
		AggregateType: firstNonEmpty(original.AggregateType, envelope.AggregateType),
		AggregateID:   firstNonEmpty(original.AggregateID, envelope.AggregateID),
		EventType:     firstNonEmpty(original.EventType, envelope.EventType),
		Payload:       json.RawMessage(original.Payload),
		PublishedAt:   time.Now().UTC(),
	}
	value, err := json.Marshal(event)
	if err != nil {
		return nil, "", fmt.Errorf("encode replay envelope: %w", err)
	}
	return value, event.AggregateID, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
