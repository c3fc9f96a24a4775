package resolver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const legacyTenantKey = "org_id"

type envelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type tenantCarrier struct {
	Metadata     map[string]any  `json:"metadata"`
	Subscription json.RawMessage `json:"subscription"`
	Customer     json.RawMessage `json:"customer"`
}

// TenantFromObject looks for the tenant id in the object's own metadata,
// then in an expanded subscription, then in an expanded customer. Bare id
// references are skipped.
func TenantFromObject(object []byte, key string) string {
	ids := TenantCandidates(object, key)
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

// TenantCandidates returns every tenant id the object carries, in lookup
// order.
func TenantCandidates(object []byte, key string) []string {
	var carrier tenantCarrier
	if len(bytes.TrimSpace(object)) == 0 || json.Unmarshal(object, &carrier) != nil {
		return nil
	}
	var ids []string
	if id := tenantFromMetadata(carrier.Metadata, key); id != "" {
		ids = append(ids, id)
	}
	for _, nested := range []json.RawMessage{carrier.Subscription, carrier.Customer} {
		if !isExpanded(nested) {
			continue
		}
		var expanded struct {
			Metadata map[string]any `json:"metadata"`
		}
		if json.Unmarshal(nested, &expanded) != nil {
			continue
		}
		if id := tenantFromMetadata(expanded.Metadata, key); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func tenantFromMetadata(metadata map[string]any, key string) string {
	if len(metadata) == 0 {
		return ""
	}
	for _, k := range []string{key, legacyTenantKey} {
		if k == "" {
			continue
		}
		raw, ok := metadata[k]
		if !ok || raw == nil {
			continue
		}
		var value string
		switch v := raw.(type) {
		case string:
			value = v
		case float64:
			value = fmt.Sprintf("%.0f", v)
		default:
			value = fmt.Sprint(v)
		}
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}

func isExpanded(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
