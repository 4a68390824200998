// Package publish pushes finished run results onto NATS JetStream for
// downstream reporting consumers. Publishing is best-effort: a failed publish
// is logged and skipped, never fails the run.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"wcisim/internal/ledger"
	"wcisim/internal/observability"
	"wcisim/internal/sim"
	"wcisim/internal/supply"
)

// StreamName is the JetStream stream holding simulation results.
const StreamName = "WCI_SIM_RESULTS"

// QuarterResult is the per-quarter message payload: the snapshot's account
// totals, coarse enough for dashboards without shipping the full ledger.
type QuarterResult struct {
	RunID        string             `json:"run_id"`
	Jurisdiction string             `json:"jurisdiction"`
	Quarter      string             `json:"quarter"`
	Total        float64            `json:"total"`
	ByAccount    map[string]float64 `json:"by_account"`
	Timestamp    time.Time          `json:"timestamp"`
}

// BankResult is the per-run banking series payload.
type BankResult struct {
	RunID     string          `json:"run_id"`
	Series    []supply.Series `json:"series"`
	Timestamp time.Time       `json:"timestamp"`
}

// Publisher publishes run results to JetStream.
type Publisher struct {
	js      jetstream.JetStream
	metrics *observability.Metrics
	log     zerolog.Logger
}

func NewPublisher(js jetstream.JetStream, metrics *observability.Metrics, log zerolog.Logger) *Publisher {
	return &Publisher{js: js, metrics: metrics, log: log}
}

// PublishResult publishes every quarterly snapshot of a finished run, then
// the banking series. Individual failures are counted and skipped.
func (p *Publisher) PublishResult(ctx context.Context, res *sim.Result, series []supply.Series) {
	for j, st := range res.States {
		for _, snap := range st.Snapshots {
			p.publishQuarter(ctx, res.RunID, j, snap)
		}
	}

	msg := BankResult{RunID: res.RunID, Series: series, Timestamp: time.Now()}
	subject := fmt.Sprintf("wci.sim.results.bank.%s", res.RunID)
	p.publish(ctx, subject, msg)
}

func (p *Publisher) publishQuarter(ctx context.Context, runID string, j ledger.Jurisdiction, snap sim.Snapshot) {
	byAccount := make(map[string]float64)
	for _, r := range snap.Ledger.Rows() {
		byAccount[r.Key.Acct.String()] += r.Qty
	}
	msg := QuarterResult{
		RunID:        runID,
		Jurisdiction: j.String(),
		Quarter:      snap.Quarter.String(),
		Total:        snap.Ledger.Total(),
		ByAccount:    byAccount,
		Timestamp:    time.Now(),
	}
	subject := fmt.Sprintf("wci.sim.results.%s.%s", j, snap.Quarter)
	p.publish(ctx, subject, msg)
}

func (p *Publisher) publish(ctx context.Context, subject string, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		p.countError()
		p.log.Warn().Err(err).Str("subject", subject).Msg("result marshal failed")
		return
	}
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		p.countError()
		p.log.Warn().Err(err).Str("subject", subject).Msg("result publish failed")
		return
	}
	if p.metrics != nil {
		p.metrics.PublishedResults.Inc()
	}
}

func (p *Publisher) countError() {
	if p.metrics != nil {
		p.metrics.PublishErrors.Inc()
	}
}

// EnsureStream creates or updates the results stream.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"wci.sim.results.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create results stream: %w", err)
	}
	return nil
}
