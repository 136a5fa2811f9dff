package mapper

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Pair is a key and value extracted from a single record.
type Pair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (p Pair) String() string {
	return fmt.Sprintf("(%s, %s)", p.Key, p.Value)
}

// Tokenizer extracts a result of type T from one raw record.
// Tokenizers must be pure: they are called concurrently from every worker.
type Tokenizer[T any] func(record string) (T, error)

// FieldIndexError reports a field index that does not exist in a record.
type FieldIndexError struct {
	Index  int // requested index
	Fields int // number of fields the record actually had
}

func (e *FieldIndexError) Error() string {
	return fmt.Sprintf("%s: index %d, record has %d fields", ErrFieldIndexOutOfRange, e.Index, e.Fields)
}

func (e *FieldIndexError) Unwrap() error {
	return ErrFieldIndexOutOfRange
}

func field(fields []string, index int) (string, error) {
	if index < 0 || index >= len(fields) {
		return "", &FieldIndexError{Index: index, Fields: len(fields)}
	}
	return fields[index], nil
}

// ExtractPair splits record on whitespace and returns the tokens at
// keyIndex and valueIndex.
func ExtractPair(record string, keyIndex, valueIndex int) (Pair, error) {
	tokens := strings.Fields(record)

	key, err := field(tokens, keyIndex)
	if err != nil {
		return Pair{}, err
	}
	value, err := field(tokens, valueIndex)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Key: key, Value: value}, nil
}

// ExtractKey parses record as one delimited row and returns the field at keyIndex.
// Quoted fields may contain the delimiter.
func ExtractKey(record string, keyIndex int, delimiter rune) (string, error) {
	reader := csv.NewReader(strings.NewReader(record))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	fields, err := reader.Read()
	if err == io.EOF {
		fields = nil
	} else if err != nil {
		return "", fmt.Errorf("parse record: %w", err)
	}
	return field(fields, keyIndex)
}

// PairTokenizer returns a Tokenizer running ExtractPair with fixed indices.
func PairTokenizer(keyIndex, valueIndex int) Tokenizer[Pair] {
	return func(record string) (Pair, error) {
		return ExtractPair(record, keyIndex, valueIndex)
	}
}

// KeyTokenizer returns a Tokenizer running ExtractKey with fixed index and delimiter.
func KeyTokenizer(keyIndex int, delimiter rune) Tokenizer[string] {
	return func(record string) (string, error) {
		return ExtractKey(record, keyIndex, delimiter)
	}
}
