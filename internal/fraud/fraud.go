// Package fraud scores cross-session abuse signals: IP reuse, device reuse,
// duplicate text, geolocation consistency, and submission velocity.
package fraud

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/veridata/surveyguard/internal/config"
	"github.com/veridata/surveyguard/internal/store"
)

// Flag reason keys emitted when a component crosses its threshold.
const (
	ReasonIPReuse      = "ip_reuse"
	ReasonDeviceReuse  = "device_reuse"
	ReasonDuplicate    = "duplicate_responses"
	ReasonGeolocation  = "geolocation"
	ReasonHighVelocity = "high_velocity"
)

const unavailable = "unavailable"

// Store is the slice of the persistence layer the analyzer reads.
type Store interface {
	CountSessionsByIP(ctx context.Context, ip string, now time.Time) (store.IPReuse, error)
	CountRespondentsByFingerprint(ctx context.Context, fingerprint string) (int, error)
	PeerResponseTexts(ctx context.Context, surveyID, excludeSessionID string) (map[string]string, error)
	ResponsesInLastHour(ctx context.Context, s *store.Session, now time.Time) (int, error)
	RecentIPsForRespondent(ctx context.Context, respondentID string, now time.Time) ([]store.IPObservation, error)
}

// Analyzer computes the per-session fraud indicator. Each component degrades
// independently: a failed lookup contributes 0 and records the component as
// unavailable, and the remaining weights are not re-normalized.
type Analyzer struct {
	cfg      *config.Store
	db       Store
	resolver GeoResolver
	log      *zap.Logger
}

// New wires the analyzer.
func New(cfg *config.Store, db Store, resolver GeoResolver, log *zap.Logger) *Analyzer {
	return &Analyzer{cfg: cfg, db: db, resolver: resolver, log: log}
}

// Analyze scores session s. ownText is the concatenated response text of the
// session for duplicate comparison; empty means nothing to compare.
func (a *Analyzer) Analyze(ctx context.Context, s *store.Session, ownText string, now time.Time) *store.FraudIndicator {
	cfg := a.cfg.Current()
	reasons := make(map[string]string)

	ipScore := a.ipScore(ctx, s, now, reasons)
	deviceScore := a.deviceScore(ctx, s, reasons)
	duplicateScore := a.duplicateScore(ctx, s, ownText, reasons)
	geo := a.geoComponent(ctx, s, now, reasons)
	velocityScore := a.velocityScore(ctx, cfg, s, now, reasons)

	w := cfg.FraudWeights
	overall := clamp01(w.IP*ipScore + w.Device*deviceScore + w.Duplicate*duplicateScore +
		w.Geo*geo + w.Velocity*velocityScore)

	return &store.FraudIndicator{
		SessionID:         s.ID,
		SurveyID:          s.SurveyID,
		PlatformID:        s.PlatformID,
		RespondentID:      s.RespondentID,
		CreatedAt:         now,
		OverallFraudScore: overall,
		IsDuplicate:       overall >= cfg.DuplicateThreshold,
		IPScore:           ipScore,
		DeviceScore:       deviceScore,
		DuplicateScore:    duplicateScore,
		GeoScore:          geo,
		VelocityScore:     velocityScore,
		FlagReasons:       reasons,
	}
}

func (a *Analyzer) ipScore(ctx context.Context, s *store.Session, now time.Time, reasons map[string]string) float64 {
	if s.IPAddress == "" {
		return 0
	}
	reuse, err := a.db.CountSessionsByIP(ctx, s.IPAddress, now)
	if err != nil {
		a.log.Warn("ip reuse lookup failed", zap.String("session_id", s.ID), zap.Error(err))
		reasons["ip"] = unavailable
		return 0
	}

	var score float64
	switch {
	case reuse.Total >= 10 || reuse.Today >= 5:
		score = 0.80
	case reuse.Total >= 5 || reuse.Today >= 3:
		score = 0.60
	case reuse.Total >= 3:
		score = 0.40
	case reuse.Total == 2:
		score = 0.20
	}
	if score >= 0.60 {
		reasons[ReasonIPReuse] = fmt.Sprintf("%d sessions share this IP (%d in 24h)", reuse.Total, reuse.Today)
	}
	return score
}

func (a *Analyzer) deviceScore(ctx context.Context, s *store.Session, reasons map[string]string) float64 {
	if s.Fingerprint == "" {
		return 0
	}
	respondents, err := a.db.CountRespondentsByFingerprint(ctx, s.Fingerprint)
	if err != nil {
		a.log.Warn("fingerprint reuse lookup failed", zap.String("session_id", s.ID), zap.Error(err))
		reasons["device"] = unavailable
		return 0
	}

	var score float64
	switch {
	case respondents >= 5:
		score = 0.90
	case respondents >= 3:
		score = 0.70
	case respondents >= 2:
		score = 0.50
	}
	if score >= 0.50 {
		reasons[ReasonDeviceReuse] = fmt.Sprintf("%d respondents share this device fingerprint", respondents)
	}
	return score
}

func (a *Analyzer) duplicateScore(ctx context.Context, s *store.Session, ownText string, reasons map[string]string) float64 {
	if ownText == "" {
		return 0
	}
	peers, err := a.db.PeerResponseTexts(ctx, s.SurveyID, s.ID)
	if err != nil {
		a.log.Warn("peer response lookup failed", zap.String("session_id", s.ID), zap.Error(err))
		reasons["duplicate"] = unavailable
		return 0
	}

	var maxSim float64
	var maxPeer string
	for peerID, text := range peers {
		if sim := TrigramJaccard(ownText, text); sim > maxSim {
			maxSim = sim
			maxPeer = peerID
		}
	}

	var score float64
	switch {
	case maxSim >= 0.95:
		score = 1.00
	case maxSim >= 0.85:
		score = 0.80
	case maxSim >= 0.70:
		score = 0.60
	}
	if score >= 0.60 {
		reasons[ReasonDuplicate] = fmt.Sprintf("%.2f similarity with session %s", maxSim, maxPeer)
	}
	return score
}

func (a *Analyzer) geoComponent(ctx context.Context, s *store.Session, now time.Time, reasons map[string]string) float64 {
	observations, err := a.db.RecentIPsForRespondent(ctx, s.RespondentID, now)
	if err != nil {
		a.log.Warn("travel lookup failed", zap.String("session_id", s.ID), zap.Error(err))
		reasons["geo"] = unavailable
		return 0
	}
	score := geoScore(a.resolver, observations)
	if score >= 0.70 {
		reasons[ReasonGeolocation] = "impossible travel across recent sessions"
	}
	return score
}

func (a *Analyzer) velocityScore(ctx context.Context, cfg *config.Config, s *store.Session, now time.Time, reasons map[string]string) float64 {
	perHour, err := a.db.ResponsesInLastHour(ctx, s, now)
	if err != nil {
		a.log.Warn("velocity lookup failed", zap.String("session_id", s.ID), zap.Error(err))
		reasons["velocity"] = unavailable
		return 0
	}

	var score float64
	for _, band := range cfg.VelocityBands {
		if float64(perHour) >= band.PerHour {
			score = band.Score
			break
		}
	}
	if score >= 0.60 {
		reasons[ReasonHighVelocity] = fmt.Sprintf("%d responses in the last hour", perHour)
	}
	return score
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
