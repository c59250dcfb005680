package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamSnapshotKey returns the cache key for an exam's full snapshot bundle
// (metadata, knowledge areas, questions and answer keys).
func (r *CacheKeyStruct) ExamSnapshotKey(examID string) string {
	return fmt.Sprintf("exam:%s:snapshot", examID)
}

// CompletionsChannel returns the Redis PubSub channel attempt completions are
// published on, feeding the server-sent completions stream.
func (r *CacheKeyStruct) CompletionsChannel() string {
	return "attempts:completions"
}

var CacheKey = NewCacheKeyStruct()
