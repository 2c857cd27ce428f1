package pipeline

import (
	"context"
	"fmt"
	"strings"
)

// Validator checks a journal transcript for interventions that need the
// farmer's explicit confirmation before the entry is persisted.
type Validator interface {
	ValidateEntry(ctx context.Context, transcript string) (*Validation, error)
}

// Validation is the outcome of a regulatory check on one transcript.
type Validation struct {
	RequiresConfirmation bool   `json:"requires_confirmation"`
	Message              string `json:"message,omitempty"`
	Reason               string `json:"reason,omitempty"`
}

// Default watch list for plant-protection products whose application must
// be journaled deliberately. Matching is lowercase substring; the terms
// cover the French vocabulary our users dictate in.
var regulatedTerms = []string{
	"pesticide",
	"herbicide",
	"fongicide",
	"insecticide",
	"glyphosate",
	"phytosanitaire",
	"produit phyto",
	"traitement chimique",
	"bouillie bordelaise",
	"néonicotinoïde",
}

// RuleValidator flags transcripts that mention regulated plant-protection
// products. A hit only asks for confirmation, it never blocks the entry
// outright.
type RuleValidator struct {
	terms []string
}

// NewRuleValidator builds a validator over the default watch list plus any
// deployment-specific terms.
func NewRuleValidator(extra ...string) *RuleValidator {
	terms := make([]string, 0, len(regulatedTerms)+len(extra))
	terms = append(terms, regulatedTerms...)
	for _, t := range extra {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			terms = append(terms, t)
		}
	}
	return &RuleValidator{terms: terms}
}

func (v *RuleValidator) ValidateEntry(ctx context.Context, transcript string) (*Validation, error) {
	lowered := strings.ToLower(transcript)
	for _, term := range v.terms {
		if strings.Contains(lowered, term) {
			return &Validation{
				RequiresConfirmation: true,
				Message:              fmt.Sprintf("Cette note mentionne « %s ». Confirmez-vous l'enregistrement de cette intervention ?", term),
				Reason:               fmt.Sprintf("regulated term %q", term),
			}, nil
		}
	}
	return &Validation{}, nil
}
