package triage

import "supportbot/internal/domain"

// Decide applies the escalation policy to a classification. Electrical
// faults, unclassifiable reports and anything rated high always go to a
// human; the rest follow the classifier's advice as long as it gave
// guidance to show.
func Decide(cls domain.Classification) domain.Action {
	switch {
	case cls.Category == domain.CategoryElectrical, cls.Category == domain.CategoryOther:
		return domain.ActionEscalate
	case cls.Severity == domain.SeverityHigh:
		return domain.ActionEscalate
	case cls.Action != domain.ActionTroubleshoot:
		return domain.ActionEscalate
	case len(cls.Guidance) == 0:
		return domain.ActionEscalate
	}
	return domain.ActionTroubleshoot
}
