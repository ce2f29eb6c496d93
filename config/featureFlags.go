package config

import (
	"os"
	"strings"
)

// AuditChecklistAnswers emits a checklist-change audit event for every item answer.
//
// Set via env:
// - AUDIT_CHECKLIST_ANSWERS=true
func AuditChecklistAnswers() bool {
	return boolFromEnv("AUDIT_CHECKLIST_ANSWERS")
}

// LegacyBooleanResponded treats an explicit "false" boolean answer as unanswered.
//
// Set via env:
// - CHECKLIST_LEGACY_BOOLEAN_RESPONDED=true
func LegacyBooleanResponded() bool {
	return boolFromEnv("CHECKLIST_LEGACY_BOOLEAN_RESPONDED")
}

// WorkOrderPrefix is prepended to the zero-padded work-order sequence number.
func WorkOrderPrefix() string {
	if v := strings.TrimSpace(os.Getenv("WORK_ORDER_PREFIX")); v != "" {
		return v
	}
	return "OS-"
}

// DefaultPhoneRegion is used to parse contact phones written without a country code.
func DefaultPhoneRegion() string {
	if v := strings.TrimSpace(os.Getenv("DEFAULT_PHONE_REGION")); v != "" {
		return strings.ToUpper(v)
	}
	return "BR"
}

func boolFromEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
