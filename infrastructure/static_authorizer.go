package infrastructure

import (
	"context"

	"kuri/domain/interfaces"
)

// StaticAuthorizer grants capabilities from fixed identity lists loaded at
// startup. Grants never change while the process runs.
type StaticAuthorizer struct {
	grants map[interfaces.Capability]map[string]bool
}

// NewStaticAuthorizer creates an authorizer from the configured identity lists
func NewStaticAuthorizer(adminIDs, initializerIDs []string, randomnessSubscriber string) *StaticAuthorizer {
	grants := map[interfaces.Capability]map[string]bool{
		interfaces.CapabilityAdmin:                asSet(adminIDs),
		interfaces.CapabilityInitializer:          asSet(initializerIDs),
		interfaces.CapabilityRandomnessSubscriber: asSet([]string{randomnessSubscriber}),
	}
	return &StaticAuthorizer{grants: grants}
}

// Authorize reports whether the principal holds the capability
func (a *StaticAuthorizer) Authorize(ctx context.Context, principal string, capability interfaces.Capability) bool {
	if principal == "" {
		return false
	}
	return a.grants[capability][principal]
}

func asSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id != "" {
			set[id] = true
		}
	}
	return set
}
