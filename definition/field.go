package definition

// Field is one key of a pipeline object or parameter as the service expects
// it: either a string value or a reference to another object's id.
type Field struct {
	Key   string
	Value string
	IsRef bool
}

// StringField returns a Field holding a string value.
func StringField(key, value string) Field {
	return Field{Key: key, Value: value}
}

// RefField returns a Field referring to the object with id ref.
func RefField(key, ref string) Field {
	return Field{Key: key, Value: ref, IsRef: true}
}

// MarshalJSON renders the field the way the service's JSON API does.
func (f Field) MarshalJSON() ([]byte, error) {
	if f.IsRef {
		return []byte(marshalText(struct {
			Key      string `json:"key"`
			RefValue string `json:"refValue"`
		}{f.Key, f.Value})), nil
	}
	return []byte(marshalText(struct {
		Key         string `json:"key"`
		StringValue string `json:"stringValue"`
	}{f.Key, f.Value})), nil
}

// EncodeField converts one source key and value into fields. Lists produce
// one field per item, all under key; nested lists are flattened in order. A
// reference produces a ref field, and everything else a string field.
func EncodeField(key string, v Value) []Field {
	switch v.Kind {
	case ListKind:
		fields := make([]Field, 0, len(v.Items))
		for _, item := range v.Items {
			fields = append(fields, EncodeField(key, item)...)
		}
		return fields
	case ReferenceKind:
		return []Field{RefField(key, v.Text)}
	default:
		return []Field{StringField(key, v.Text)}
	}
}
