package repository

import (
	"strconv"
	"strings"
)

// vectorLiteral renders an embedding in the pgvector input format so it
// can be passed as a text parameter and cast with ::vector. Avoids
// registering a custom pgx codec for the vector type.
func vectorLiteral(embedding []float32) string {
	if len(embedding) == 0 {
		return "[]"
	}
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(float64(v), 'f', 6, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// keywordPattern turns a keyword into an ILIKE pattern.
func keywordPattern(keyword string) string {
	return "%" + keyword + "%"
}
