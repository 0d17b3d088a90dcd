package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/lead-pipeline/internal/agents"
	"github.com/wolfman30/lead-pipeline/internal/archive"
	"github.com/wolfman30/lead-pipeline/internal/assignment"
	"github.com/wolfman30/lead-pipeline/internal/buffer"
	"github.com/wolfman30/lead-pipeline/internal/cache"
	"github.com/wolfman30/lead-pipeline/internal/classifier"
	appconfig "github.com/wolfman30/lead-pipeline/internal/config"
	"github.com/wolfman30/lead-pipeline/internal/conversation"
	"github.com/wolfman30/lead-pipeline/internal/dispatch"
	"github.com/wolfman30/lead-pipeline/internal/extraction"
	"github.com/wolfman30/lead-pipeline/internal/knowledge"
	"github.com/wolfman30/lead-pipeline/internal/leads"
	"github.com/wolfman30/lead-pipeline/internal/llm"
	"github.com/wolfman30/lead-pipeline/internal/messaging"
	"github.com/wolfman30/lead-pipeline/internal/notify"
	"github.com/wolfman30/lead-pipeline/internal/observability/metrics"
	"github.com/wolfman30/lead-pipeline/internal/pipeline"
	"github.com/wolfman30/lead-pipeline/internal/templates"
	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

const (
	memoryQueueSize   = 256
	followUpWorkers   = 4
	keywordCacheTTL   = time.Minute
	defaultEmbedCache = 24 * time.Hour
)

// Resources are the external clients a pipeline is built from. LLM, Embedder and Redis are
// optional.
type Resources struct {
	DB         *Database
	Redis      *redis.Client
	AWS        aws.Config
	LLM        llm.Client
	Embedder   llm.Embedder
	Sender     messaging.Sender
	Email      notify.EmailSender
	Registerer prometheus.Registerer
}

// Components is the fully wired pipeline shared by every binary.
type Components struct {
	Metrics       *metrics.PipelineMetrics
	Conversations *conversation.Service
	Store         *conversation.Store
	Agents        agents.Source
	Keywords      *classifier.KeywordRepository

	Buffers   buffer.Store
	Queue     buffer.Queue
	Ledger    *buffer.RunLedger
	Scheduler *buffer.Scheduler
	Processor *pipeline.Processor
	Runner    *buffer.Runner
	Sweeper   *buffer.Sweeper

	Classifier *classifier.Classifier
	Extractor  *extraction.Extractor
	Scorer     *leads.Scorer
	Trigger    *leads.AsyncTrigger
	Refresher  *leads.RecencyRefresher
	Validator  *assignment.Validator
}

// BuildComponents wires stores, the reply pipeline and the follow-up jobs.
func BuildComponents(ctx context.Context, cfg *appconfig.Config, res Resources, logger *logging.Logger) (*Components, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if res.DB == nil || res.DB.Pool == nil {
		return nil, fmt.Errorf("bootstrap: database is required")
	}
	if res.Sender == nil {
		return nil, fmt.Errorf("bootstrap: outbound sender is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	pool := res.DB.Pool
	m := metrics.NewPipelineMetrics(res.Registerer)

	c := &Components{Metrics: m}
	c.Store = conversation.NewStore(pool)
	c.Agents = agents.NewCachedSource(agents.NewRepository(pool), cache.NewTTL[*agents.Config](cfg.PromptCacheTTL))
	c.Keywords = classifier.NewKeywordRepository(pool)

	var convOpts []conversation.ServiceOption
	if strings.TrimSpace(cfg.ArchiveBucket) != "" {
		archiver := archive.NewStore(s3.NewFromConfig(res.AWS, func(o *s3.Options) {
			o.UsePathStyle = cfg.AWSEndpointOverride != ""
		}), cfg.ArchiveBucket, logger)
		convOpts = append(convOpts, conversation.WithArchiver(archiver))
		logger.Info("transcript archive enabled", "bucket", cfg.ArchiveBucket)
	}
	c.Conversations = conversation.NewService(c.Store, logger, convOpts...)

	// Classification, extraction and retrieval.
	classifierOpts := []classifier.Option{
		classifier.WithUpdater(c.Store),
		classifier.WithMetrics(m),
		classifier.WithThresholds(cfg.ClassifierSwitchThreshold, cfg.ClassifierEscalationCutoff),
	}
	if res.DB.SQL != nil {
		classifierOpts = append(classifierOpts, classifier.WithLog(classifier.NewSQLLog(res.DB.SQL)))
	}
	if res.LLM != nil {
		classifierOpts = append(classifierOpts, classifier.WithModel(c.Agents, res.LLM))
	}
	c.Classifier = classifier.New(classifier.NewCachedKeywords(c.Keywords, keywordCacheTTL), logger, classifierOpts...)

	contexts := extraction.NewPostgresContextStore(pool)
	extractorOpts := []extraction.Option{extraction.WithCustomerUpdater(c.Store)}
	if res.LLM != nil {
		extractorOpts = append(extractorOpts, extraction.WithModel(c.Agents, res.LLM))
	}
	c.Extractor = extraction.New(contexts, logger, extractorOpts...)

	var retriever pipeline.Retriever
	if res.Embedder != nil {
		retrieverOpts := []knowledge.Option{
			knowledge.WithLimits(cfg.KnowledgeTopK, cfg.KnowledgeMinSimilarity),
			knowledge.WithMetrics(m),
		}
		if res.Redis != nil {
			ttl := cfg.EmbeddingCacheTTL
			if ttl <= 0 {
				ttl = defaultEmbedCache
			}
			retrieverOpts = append(retrieverOpts, knowledge.WithCache(knowledge.NewRedisEmbeddingCache(res.Redis, ttl)))
		}
		retriever = knowledge.NewRetriever(res.Embedder, knowledge.NewPgvectorStore(pool), logger, retrieverOpts...)
	}

	composer := templates.NewComposer(
		templates.NewCachedSource(templates.NewRepository(pool), cache.NewTTL[*templates.Template](cfg.PromptCacheTTL)),
		logger,
	)

	// Dispatch with duplicate suppression and handoff email.
	c.Buffers = buffer.NewPostgresStore(pool)
	dispatchOpts := []dispatch.Option{
		dispatch.WithDuplicateWindow(cfg.DuplicateWindow),
		dispatch.WithMetrics(m),
	}
	if strings.TrimSpace(cfg.HandoffNotifyEmail) != "" && res.Email != nil {
		var notifierOpts []notify.HandoffOption
		if res.LLM != nil {
			notifierOpts = append(notifierOpts, notify.WithSummarizer(c.Agents, res.LLM))
		}
		notifier := notify.NewHandoffNotifier(res.Email, c.Store, cfg.HandoffNotifyEmail, logger, notifierOpts...)
		dispatchOpts = append(dispatchOpts, dispatch.WithNotifier(notifier))
	}
	dispatcher := dispatch.New(c.Store, res.Sender, c.Conversations, c.Buffers, logger, dispatchOpts...)

	// Follow-up jobs run off the reply path whenever a conversation changes.
	scorerOpts := []leads.Option{
		leads.WithDistributions(leads.NewDistributionRepository(pool)),
		leads.WithMetrics(m),
	}
	if res.LLM != nil {
		scorerOpts = append(scorerOpts, leads.WithModel(c.Agents, res.LLM))
	}
	c.Scorer = leads.NewScorer(c.Store, contexts, logger, scorerOpts...)
	c.Validator = assignment.NewValidator(c.Store, c.Agents, logger)
	c.Trigger = leads.NewAsyncTrigger(logger, followUpWorkers,
		leads.ScoreJob(c.Scorer),
		leads.Job{Name: "assignment_validation", Run: c.Validator.Job},
	)
	c.Conversations.SetChangeListener(c.Trigger)
	c.Refresher = leads.NewRecencyRefresher(c.Store, c.Scorer, logger)

	c.Processor = pipeline.NewProcessor(pipeline.Deps{
		Buffers:       c.Buffers,
		Conversations: c.Store,
		Classifier:    c.Classifier,
		Extractor:     c.Extractor,
		Retriever:     retriever,
		Composer:      composer,
		Dispatcher:    dispatcher,
		Listener:      c.Trigger,
	}, logger)

	// Scheduling and delivery.
	queue, err := buildQueue(res.AWS, cfg, logger)
	if err != nil {
		return nil, err
	}
	c.Queue = queue
	var recorder buffer.RunRecorder
	if !cfg.UseMemoryQueue && strings.TrimSpace(cfg.BufferRunsTable) != "" {
		c.Ledger = buffer.NewRunLedger(dynamodb.NewFromConfig(res.AWS), cfg.BufferRunsTable)
		recorder = c.Ledger
	}
	c.Scheduler = buffer.NewScheduler(c.Buffers, queue, logger,
		buffer.WithWindow(cfg.BufferWindow),
		buffer.WithRecorder(c.Conversations),
		buffer.WithFallbackProcessor(c.Processor),
		buffer.WithSchedulerMetrics(m),
	)
	c.Runner = buffer.NewRunner(c.Processor, queue, recorder, m, logger)
	c.Sweeper = buffer.NewSweeper(c.Buffers, c.Processor, cfg.BufferSweepGrace, logger)

	logger.Info("pipeline components ready",
		"memory_queue", cfg.UseMemoryQueue,
		"run_ledger", c.Ledger != nil,
		"retrieval", retriever != nil,
		"model", res.LLM != nil,
	)
	return c, nil
}

// RunLookup returns the ledger as a buffer.RunLookup, or nil when runs are not recorded.
func (c *Components) RunLookup() buffer.RunLookup {
	if c == nil || c.Ledger == nil {
		return nil
	}
	return c.Ledger
}

func buildQueue(awsCfg aws.Config, cfg *appconfig.Config, logger *logging.Logger) (buffer.Queue, error) {
	if cfg.UseMemoryQueue {
		logger.Info("using in-memory buffer queue")
		return buffer.NewMemoryQueue(memoryQueueSize), nil
	}
	if strings.TrimSpace(cfg.BufferQueueURL) == "" {
		return nil, fmt.Errorf("bootstrap: BUFFER_QUEUE_URL is required unless USE_MEMORY_QUEUE is set")
	}
	return buffer.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.BufferQueueURL), nil
}
