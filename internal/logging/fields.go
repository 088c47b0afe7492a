package logging

// cloneFields returns a copy of src; never nil.
func cloneFields(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// mergeFields flattens the three field sources, later sources overriding
// earlier ones. It returns nil when there is nothing to write.
func mergeFields(ctxFields, loggerFields map[string]interface{}, callFields []LogField) map[string]interface{} {
	if len(ctxFields) == 0 && len(loggerFields) == 0 && len(callFields) == 0 {
		return nil
	}
	merged := make(map[string]interface{}, len(ctxFields)+len(loggerFields)+len(callFields))
	for k, v := range ctxFields {
		merged[k] = v
	}
	for k, v := range loggerFields {
		merged[k] = v
	}
	for _, f := range callFields {
		merged[f.Key] = f.Value
	}
	return merged
}
