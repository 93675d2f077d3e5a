package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/bazaar-mp/project/internal/app/actionsvc"
	"github.com/bazaar-mp/project/internal/app/factory"
	"github.com/bazaar-mp/project/internal/contracts"
	"github.com/bazaar-mp/project/internal/platform/auth"
	"github.com/bazaar-mp/project/internal/platform/logging"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type config struct {
	NodeBase        string        `envconfig:"NODE_BASE" default:"http://market-node:8080"`
	APIKey          string        `envconfig:"API_KEY"`
	Wallet          string        `envconfig:"WALLET" default:"main"`
	Addresses       []string      `envconfig:"ADDRESSES" required:"true"`
	Market          string        `envconfig:"MARKET" required:"true"`
	StartupWait     time.Duration `envconfig:"STARTUP_WAIT" default:"2m"`
	Duration        time.Duration `envconfig:"DURATION" default:"10m"`
	RampUp          time.Duration `envconfig:"RAMP_UP" default:"30s"`
	ActionsPerPeer  float64       `envconfig:"ACTIONS_PER_PEER_PER_SECOND" default:"0.3"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s"`
	MetricsAddr     string        `envconfig:"METRICS_ADDR" default:":9099"`
	EnableEvents    bool          `envconfig:"ENABLE_EVENTS" default:"true"`
	EstimateOnly    bool          `envconfig:"ESTIMATE_ONLY" default:"false"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat       string        `envconfig:"LOG_FORMAT" default:"console"`
	ProposalOptions []string      `envconfig:"PROPOSAL_OPTIONS" default:"yes,no"`
}

// peer is one sending address posting to the market.
type peer struct {
	Index   int
	Address string

	mu        sync.Mutex
	proposals []string
}

type runner struct {
	cfg         config
	logger      *zap.Logger
	apiClient   *http.Client
	eventClient *http.Client

	requestsSuccess atomic.Int64
	requestsError   atomic.Int64
	activePeers     atomic.Int64
	eventsReceived  atomic.Int64
}

var (
	registry = prometheus.NewRegistry()

	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mp",
		Name:      "loadgen_requests_total",
		Help:      "HTTP requests sent by the load generator.",
	}, []string{"endpoint", "status", "outcome"})

	actionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mp",
		Name:      "loadgen_actions_total",
		Help:      "Actions posted by the load generator.",
	}, []string{"type", "outcome"})

	activePeersGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mp",
		Name:      "loadgen_active_peers",
		Help:      "Peers currently posting actions.",
	})

	eventsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mp",
		Name:      "loadgen_events_total",
		Help:      "Notifications read from the node's event stream.",
	})
)

func init() {
	registry.MustRegister(requestsTotal, actionsTotal, activePeersGauge, eventsTotal)
}

func main() {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	var cfg config
	if err := envconfig.Process("LOADGEN", &cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg.NodeBase = strings.TrimRight(strings.TrimSpace(cfg.NodeBase), "/")

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx := baseCtx
	if cfg.Duration > 0 {
		timeoutCtx, cancel := context.WithTimeout(baseCtx, cfg.Duration)
		defer cancel()
		ctx = timeoutCtx
	}

	go runMetricsServer(cfg.MetricsAddr, logger)

	transport := &http.Transport{
		MaxIdleConns:        len(cfg.Addresses) * 4,
		MaxIdleConnsPerHost: len(cfg.Addresses) * 4,
		IdleConnTimeout:     90 * time.Second,
	}
	r := &runner{
		cfg:         cfg,
		logger:      logger,
		apiClient:   &http.Client{Timeout: cfg.RequestTimeout, Transport: transport},
		eventClient: &http.Client{Transport: transport},
	}

	if err := r.waitForNode(ctx); err != nil {
		logger.Fatal("node not ready", zap.Error(err))
	}
	if cfg.EnableEvents {
		go r.runEventLoop(ctx)
	}
	go r.logProgress(ctx)

	var wg sync.WaitGroup
	for i, addr := range cfg.Addresses {
		p := &peer{Index: i, Address: strings.TrimSpace(addr)}
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.runPeer(ctx, p)
		}()
	}
	<-ctx.Done()
	wg.Wait()

	logger.Info("load test complete",
		zap.Int64("success_requests", r.requestsSuccess.Load()),
		zap.Int64("error_requests", r.requestsError.Load()),
		zap.Int64("events", r.eventsReceived.Load()))
}

func (r *runner) waitForNode(ctx context.Context) error {
	deadline := time.Now().Add(r.cfg.StartupWait)
	var lastErr error
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.NodeBase+"/readyz", nil)
		if err != nil {
			return err
		}
		resp, err := r.apiClient.Do(req)
		if err == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
			err = fmt.Errorf("status=%d", resp.StatusCode)
		}
		lastErr = err
		time.Sleep(1200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = errors.New("timeout")
	}
	return lastErr
}

func (r *runner) runPeer(ctx context.Context, p *peer) {
	if r.cfg.RampUp > 0 {
		delay := time.Duration(float64(r.cfg.RampUp) / float64(len(r.cfg.Addresses)) * float64(p.Index))
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}

	activePeersGauge.Inc()
	r.activePeers.Add(1)
	defer activePeersGauge.Dec()
	defer r.activePeers.Add(-1)

	interval := time.Second
	if r.cfg.ActionsPerPeer > 0 {
		interval = time.Duration(float64(time.Second) / r.cfg.ActionsPerPeer)
		if interval < 25*time.Millisecond {
			interval = 25 * time.Millisecond
		}
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(p.Index*7)))
	select {
	case <-ctx.Done():
		return
	case <-time.After(time.Duration(rng.Int63n(int64(interval)))):
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runAction(ctx, p, rng)
		}
	}
}

func (r *runner) runAction(ctx context.Context, p *peer, rng *rand.Rand) {
	proposal, hasProposal := p.randomProposal(rng)
	choice := rng.Float64()
	switch {
	case hasProposal && choice < 0.25:
		r.vote(ctx, p, rng, proposal)
	case choice < 0.35:
		r.propose(ctx, p, rng)
	default:
		r.comment(ctx, p, rng)
	}
}

func (r *runner) comment(ctx context.Context, p *peer, rng *rand.Rand) {
	params := factory.CommentAddParams{
		Sender:   p.Address,
		Receiver: r.cfg.Market,
		Type:     contracts.CommentMarketplace,
		Target:   r.cfg.Market,
		Message:  fmt.Sprintf("load comment %d", rng.Intn(1_000_000)),
	}
	_, _ = r.post(ctx, p, contracts.ActionCommentAdd, params)
}

func (r *runner) propose(ctx context.Context, p *peer, rng *rand.Rand) {
	params := factory.ProposalAddParams{
		Submitter:   p.Address,
		Title:       fmt.Sprintf("load proposal %d", rng.Intn(1_000_000)),
		Description: "generated",
		Category:    contracts.ProposalPublicVote,
		Options:     r.cfg.ProposalOptions,
	}
	resp, err := r.post(ctx, p, contracts.ActionProposalAdd, params)
	if err == nil && resp.Hash != "" && !resp.Estimated {
		p.addProposal(resp.Hash)
	}
}

func (r *runner) vote(ctx context.Context, p *peer, rng *rand.Rand, proposalHash string) {
	idx := rng.Intn(len(r.cfg.ProposalOptions))
	optionHash, err := factory.OptionHash(proposalHash, contracts.ProposalOption{
		OptionID:    idx,
		Description: r.cfg.ProposalOptions[idx],
	})
	if err != nil {
		actionsTotal.WithLabelValues(string(contracts.ActionVote), "error").Inc()
		return
	}
	params := factory.VoteParams{
		ProposalHash:       proposalHash,
		ProposalOptionHash: optionHash,
		Voter:              p.Address,
	}
	_, _ = r.post(ctx, p, contracts.ActionVote, params)
}

type postBody struct {
	Wallet      string `json:"wallet"`
	From        string `json:"from"`
	To          string `json:"to"`
	EstimateFee bool   `json:"estimate_fee,omitempty"`
	Params      any    `json:"params"`
}

func (r *runner) post(ctx context.Context, p *peer, t contracts.ActionType, params any) (actionsvc.PostResponse, error) {
	var resp actionsvc.PostResponse
	body := postBody{Wallet: r.cfg.Wallet, From: p.Address, To: r.cfg.Market, EstimateFee: r.cfg.EstimateOnly, Params: params}
	err := r.requestJSON(ctx, "post_action", http.MethodPost, r.cfg.NodeBase+"/api/v1/actions/"+string(t), body, &resp,
		http.StatusAccepted, http.StatusOK)
	if err != nil {
		actionsTotal.WithLabelValues(string(t), "error").Inc()
		r.logger.Debug("post action failed", zap.String("type", string(t)), zap.String("from", p.Address), zap.Error(err))
		return resp, err
	}
	actionsTotal.WithLabelValues(string(t), "success").Inc()
	return resp, nil
}

func (r *runner) runEventLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := r.readEvents(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Warn("event stream reconnect", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(1200 * time.Millisecond):
		}
	}
}

func (r *runner) readEvents(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.NodeBase+"/api/v1/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	r.authorize(req)

	resp, err := r.eventClient.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues("events", "0", "error").Inc()
		r.requestsError.Add(1)
		return err
	}
	defer resp.Body.Close()
	status := strconv.Itoa(resp.StatusCode)
	if resp.StatusCode != http.StatusOK {
		requestsTotal.WithLabelValues("events", status, "error").Inc()
		r.requestsError.Add(1)
		return fmt.Errorf("unexpected event stream status: %d", resp.StatusCode)
	}
	requestsTotal.WithLabelValues("events", status, "success").Inc()
	r.requestsSuccess.Add(1)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "event:") {
			eventsTotal.Inc()
			r.eventsReceived.Add(1)
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return context.Canceled
		}
		return err
	}
	return nil
}

func (r *runner) authorize(req *http.Request) {
	if key := strings.TrimSpace(r.cfg.APIKey); key != "" {
		req.Header.Set(auth.HeaderAPIKey, key)
	}
}

func (r *runner) requestJSON(ctx context.Context, endpoint, method, requestURL string, payload, out any, expected ...int) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, requestURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	r.authorize(req)

	resp, err := r.apiClient.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues(endpoint, "0", "error").Inc()
		r.requestsError.Add(1)
		return err
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	status := strconv.Itoa(resp.StatusCode)
	if readErr != nil {
		requestsTotal.WithLabelValues(endpoint, status, "error").Inc()
		r.requestsError.Add(1)
		return readErr
	}
	for _, want := range expected {
		if resp.StatusCode != want {
			continue
		}
		requestsTotal.WithLabelValues(endpoint, status, "success").Inc()
		r.requestsSuccess.Add(1)
		if out != nil && len(body) > 0 {
			return json.Unmarshal(body, out)
		}
		return nil
	}
	requestsTotal.WithLabelValues(endpoint, status, "error").Inc()
	r.requestsError.Add(1)
	return fmt.Errorf("unexpected status=%d body=%s", resp.StatusCode, truncate(string(body), 240))
}

func (r *runner) logProgress(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.logger.Info("progress",
				zap.Int64("success_requests", r.requestsSuccess.Load()),
				zap.Int64("error_requests", r.requestsError.Load()),
				zap.Int64("active_peers", r.activePeers.Load()),
				zap.Int64("events", r.eventsReceived.Load()))
		}
	}
}

func runMetricsServer(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("metrics listening", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("metrics server failed", zap.Error(err))
	}
}

func (p *peer) addProposal(hash string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.proposals = append(p.proposals, hash)
}

func (p *peer) randomProposal(rng *rand.Rand) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.proposals) == 0 {
		return "", false
	}
	return p.proposals[rng.Intn(len(p.proposals))], true
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max] + "..."
}
