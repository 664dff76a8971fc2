package kb

import "fmt"

// Tier is the downstream disposition decided from confidence.
type Tier string

const (
	TierAuto          Tier = "auto"
	TierFlagged       Tier = "flagged"
	TierLowConfidence Tier = "low_confidence"
)

// Threshold policy names. Policies are configuration, not one hardcoded
// global: direct questions auto-respond at a lower bar than inbound
// triage, and the triage policy requires confidence strictly above its
// auto threshold.
const (
	PolicyDirectQuestion = "direct-question"
	PolicyInboundTriage  = "inbound-triage"
)

// TierPolicy maps a confidence score to a tier and an optional reply
// prefix attached before the answer text.
type TierPolicy struct {
	name          string
	autoAt        float64
	autoStrict    bool
	flaggedAt     float64
	flaggedPrefix string
	lowPrefix     string
}

var policies = map[string]TierPolicy{
	PolicyDirectQuestion: {
		name:      PolicyDirectQuestion,
		autoAt:    0.75,
		flaggedAt: 0.45,
	},
	PolicyInboundTriage: {
		name:          PolicyInboundTriage,
		autoAt:        0.85,
		autoStrict:    true,
		flaggedAt:     0.50,
		flaggedPrefix: "I'm fairly confident, but flagging for review. ",
		lowPrefix:     "Low confidence. Answer may be incomplete: ",
	},
}

// PolicyByName returns the named threshold policy.
func PolicyByName(name string) (TierPolicy, error) {
	p, ok := policies[name]
	if !ok {
		return TierPolicy{}, fmt.Errorf("unknown tier policy %q", name)
	}
	return p, nil
}

// Classify maps a confidence score to a tier under this policy.
func (p TierPolicy) Classify(confidence float64) Tier {
	switch {
	case p.autoStrict && confidence > p.autoAt:
		return TierAuto
	case !p.autoStrict && confidence >= p.autoAt:
		return TierAuto
	case confidence >= p.flaggedAt:
		return TierFlagged
	default:
		return TierLowConfidence
	}
}

// Prefix returns the reply prefix this policy attaches for the tier.
func (p TierPolicy) Prefix(tier Tier) string {
	switch tier {
	case TierFlagged:
		return p.flaggedPrefix
	case TierLowConfidence:
		return p.lowPrefix
	default:
		return ""
	}
}
