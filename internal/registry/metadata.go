package registry

import "encoding/json"

// marshalMetadata encodes a metadata map to its TEXT JSON storage form. A
// nil map becomes "{}" so the column is never empty/NULL.
func marshalMetadata(m map[string]any) (string, error) {
	if m == nil {
		m = map[string]any{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", errorf(ErrInvalidArgument, "marshal metadata: %v", err)
	}
	return string(b), nil
}

// unmarshalMetadata decodes a metadata column back into a map. An empty
// string decodes to an empty map rather than erroring.
func unmarshalMetadata(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, errorf(ErrCorrupted, "unmarshal metadata: %v", err)
	}
	return m, nil
}

// mergeMetadata performs a shallow merge of patch into base, matching
// spec.md §4.1's merge_metadata semantics: never silently overwritten,
// always a documented shallow merge.
func mergeMetadata(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// hydrateTask decodes a Task's MetadataJSON column into its Metadata map.
func hydrateTask(t *Task) error {
	m, err := unmarshalMetadata(t.MetadataJSON)
	if err != nil {
		return err
	}
	t.Metadata = m
	return nil
}

// hydrateIdempotencyKey decodes an IdempotencyKey's ResultJSON column.
func hydrateIdempotencyKey(k *IdempotencyKey) error {
	if k.ResultJSON == "" {
		k.Result = nil
		return nil
	}
	m, err := unmarshalMetadata(k.ResultJSON)
	if err != nil {
		return err
	}
	k.Result = m
	return nil
}
