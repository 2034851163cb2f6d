package ingest

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/arancormonk/dsd-neo/internal/eventlog"
	"github.com/arancormonk/dsd-neo/internal/metrics"
	"github.com/arancormonk/dsd-neo/internal/trunk"
)

const (
	inboundQueueSize  = 1024
	outboundQueueSize = 256
	statusInterval    = 5 * time.Second
)

// Publisher is the outbound message surface the pipeline needs; satisfied
// by mqttclient.Client.
type Publisher interface {
	Publish(topic string, payload []byte)
}

// PipelineOptions configures a Pipeline.
type PipelineOptions struct {
	TrunkConfig trunk.Config
	Hooks       trunk.Hooks
	Groups      trunk.GroupDirectory
	Publisher   Publisher
	EventLog    *eventlog.Log
	TopicPrefix string
	Log         zerolog.Logger
}

// Pipeline owns the processing goroutine: it decodes inbound demodulator
// events, dispatches them into the state machine in arrival order, drives
// the tick, and fans observable transitions out to MQTT, the event log,
// and Prometheus. The state machine is never touched from any other
// goroutine.
type Pipeline struct {
	sm     *trunk.StateMachine
	pub    Publisher
	elog   *eventlog.Log
	prefix string
	log    zerolog.Logger

	events chan func()
	out    chan trunk.OutEvent

	tickPeriod time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPipeline builds the pipeline and its owned state machine.
func NewPipeline(opts PipelineOptions) *Pipeline {
	log := opts.Log.With().Str("component", "ingest").Logger()
	prefix := opts.TopicPrefix
	if prefix == "" {
		prefix = "dsd-neo"
	}
	p := &Pipeline{
		pub:        opts.Publisher,
		elog:       opts.EventLog,
		prefix:     prefix,
		log:        log,
		events:     make(chan func(), inboundQueueSize),
		out:        make(chan trunk.OutEvent, outboundQueueSize),
		tickPeriod: clampTick(opts.TrunkConfig.TickPeriod),
	}
	p.sm = trunk.New(trunk.Options{
		Config:  opts.TrunkConfig,
		Log:     opts.Log,
		Hooks:   opts.Hooks,
		Groups:  opts.Groups,
		OnEvent: p.onTrunkEvent,
	})
	return p
}

func clampTick(d time.Duration) time.Duration {
	switch {
	case d < 20*time.Millisecond:
		return 200 * time.Millisecond
	case d > 2*time.Second:
		return 2 * time.Second
	default:
		return d
	}
}

// SM returns the owned state machine for snapshot reads and startup
// priming. Mutating calls belong to the processing goroutine only.
func (p *Pipeline) SM() *trunk.StateMachine { return p.sm }

// Start launches the run loop and the outbound writer.
func (p *Pipeline) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(2)
	go p.run(ctx)
	go p.writeLoop(ctx)
	p.log.Info().Dur("tick", p.tickPeriod).Msg("ingest pipeline started")
}

// Stop cancels the loops and waits for them to drain.
func (p *Pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.log.Info().Msg("ingest pipeline stopped")
}

func (p *Pipeline) run(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.tickPeriod)
	defer ticker.Stop()
	status := time.NewTicker(statusInterval)
	defer status.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case apply := <-p.events:
			apply()
		case <-ticker.C:
			p.sm.Tick()
			metrics.SetState(p.sm.State().String())
		case <-status.C:
			p.publishStatus()
		}
	}
}

// HandleMessage decodes an inbound MQTT message and queues its dispatch
// onto the processing goroutine. Called from the MQTT client's callback
// goroutine; a full queue drops the event rather than blocking the
// broker connection.
func (p *Pipeline) HandleMessage(topic string, payload []byte) {
	kind := topic[strings.LastIndexByte(topic, '/')+1:]
	apply, err := p.decode(kind, payload)
	if err != nil {
		metrics.DroppedEventsTotal.WithLabelValues("malformed").Inc()
		p.log.Debug().Err(err).Str("topic", topic).Msg("dropping malformed event")
		return
	}
	if apply == nil {
		metrics.DroppedEventsTotal.WithLabelValues("unknown_topic").Inc()
		p.log.Debug().Str("topic", topic).Msg("dropping event for unknown topic")
		return
	}
	metrics.EventsTotal.WithLabelValues(kind).Inc()
	select {
	case p.events <- apply:
	default:
		metrics.DroppedEventsTotal.WithLabelValues("queue_full").Inc()
	}
}

// decode maps a topic suffix to a closure applying the typed event to the
// state machine. SACCH-relative slot indices are normalized exactly once,
// here.
func (p *Pipeline) decode(kind string, payload []byte) (func(), error) {
	switch kind {
	case "grant":
		var m GrantMsg
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, err
		}
		slot := m.Slot
		if m.Sacch {
			slot = trunk.VoiceSlot(slot)
		}
		return func() {
			p.sm.HandleGrant(trunk.GrantEvent{
				Channel: m.Channel,
				FreqHz:  m.FreqHz,
				TG:      m.TG,
				SrcRID:  m.Src,
				DstRID:  m.Dst,
				SvcBits: m.Svc,
				IsGroup: m.IsGroup,
				Slot:    slot,
			})
		}, nil
	case "slot":
		var m SlotMsg
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, err
		}
		var k trunk.SlotEventKind
		switch m.Kind {
		case "ptt":
			k = trunk.SlotPTT
		case "active":
			k = trunk.SlotActive
		case "end":
			k = trunk.SlotEnd
		case "idle":
			k = trunk.SlotIdle
		default:
			return nil, errUnknownKind(m.Kind)
		}
		slot := m.Slot
		if m.Sacch {
			slot = trunk.VoiceSlot(slot)
		}
		return func() { p.sm.HandleSlot(trunk.SlotEvent{Kind: k, Slot: slot}) }, nil
	case "sync":
		var m SyncMsg
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, err
		}
		var k trunk.SyncKind
		switch m.Kind {
		case "cc":
			k = trunk.SyncCC
		case "vc":
			k = trunk.SyncVC
		case "lost":
			k = trunk.SyncLost
		default:
			return nil, errUnknownKind(m.Kind)
		}
		return func() { p.sm.HandleSync(trunk.SyncEvent{Kind: k}) }, nil
	case "tdu":
		return func() { p.sm.HandleTDU() }, nil
	case "enc":
		var m EncMsg
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, err
		}
		slot := m.Slot
		if m.Sacch {
			slot = trunk.VoiceSlot(slot)
		}
		return func() {
			p.sm.HandleEnc(trunk.EncEvent{Slot: slot, AlgID: m.Alg, KeyID: m.Key, TG: m.TG})
		}, nil
	case "neighbors":
		var m NeighborsMsg
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, err
		}
		return func() { p.sm.HandleNeighbors(trunk.NeighborEvent{FreqsHz: m.FreqsHz}) }, nil
	case "iden":
		var m IdenMsg
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, err
		}
		return func() {
			p.sm.HandleIden(trunk.IdenEvent{
				Iden:    m.Iden,
				Base:    m.Base,
				Spacing: m.Spacing,
				Offset:  m.Offset,
				AccType: m.Type,
			})
		}, nil
	case "site":
		var m SiteMsg
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, err
		}
		return func() {
			p.sm.HandleSite(trunk.SiteEvent{WACN: m.WACN, SysID: m.SysID, NAC: m.NAC})
		}, nil
	case "unit":
		var m UnitMsg
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, err
		}
		switch m.Kind {
		case "reg":
			return func() { p.sm.HandleRegistration(m.RID) }, nil
		case "dereg":
			return func() { p.sm.HandleDeregistration(m.RID) }, nil
		case "gaff":
			return func() { p.sm.HandleGroupAffiliation(m.RID, m.TG) }, nil
		}
		return nil, errUnknownKind(m.Kind)
	case "errors":
		var m ErrorsMsg
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, err
		}
		slot := m.Slot
		if m.Sacch {
			slot = trunk.VoiceSlot(slot)
		}
		return func() { p.sm.ReportVoiceErrors(slot, m.Pct) }, nil
	}
	return nil, nil
}

type errUnknownKind string

func (e errUnknownKind) Error() string { return "unknown event kind " + string(e) }

// onTrunkEvent runs on the processing goroutine. It records metrics
// inline and hands the event to the writer goroutine for MQTT and
// database fan-out, never blocking the state machine.
func (p *Pipeline) onTrunkEvent(ev trunk.OutEvent) {
	switch ev.Type {
	case "tune":
		metrics.TunesTotal.Inc()
	case "release":
		metrics.ReleasesTotal.WithLabelValues(ev.Reason).Inc()
	case "lockout":
		metrics.EncLockoutsTotal.Inc()
	case "hunt":
		metrics.HuntAttemptsTotal.Inc()
	}
	select {
	case p.out <- ev:
	default:
		metrics.DroppedEventsTotal.WithLabelValues("out_queue_full").Inc()
	}
}

func (p *Pipeline) writeLoop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.out:
			if p.pub != nil {
				if data, err := json.Marshal(ev); err == nil {
					p.pub.Publish(p.prefix+"/events/out/"+ev.Type, data)
				}
			}
			if p.elog != nil {
				insertCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
				if err := p.elog.InsertCallEvent(insertCtx, ev); err != nil {
					p.log.Warn().Err(err).Str("type", ev.Type).Msg("event log insert failed")
				}
				cancel()
			}
		}
	}
}

func (p *Pipeline) publishStatus() {
	if p.pub == nil {
		return
	}
	snap := p.sm.Snapshot()
	if snap == nil {
		return
	}
	out := StatusOut{
		State:      snap.State,
		Phase:      snap.Phase,
		CCFreqHz:   snap.CCFreqHz,
		VCFreqHz:   snap.VCFreqHz,
		TG:         snap.TG,
		Tunes:      snap.Counters.Tunes,
		Releases:   snap.Counters.Releases,
		Candidates: len(snap.Candidates),
	}
	if data, err := json.Marshal(out); err == nil {
		p.pub.Publish(p.prefix+"/status", data)
	}
}
