package config

import (
	"fmt"
)

// DraftPurpose is the namespace prefix of in-progress quiz drafts.
const DraftPurpose = "draft"

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// DraftKey returns the key of a user's in-progress draft for a quiz.
// Format: {purpose}_{userId}_{quizId}.
func (r *CacheKeyStruct) DraftKey(userID, quizID string) string {
	return fmt.Sprintf("%s_%s_%s", DraftPurpose, userID, quizID)
}

// QuizPayloadKey returns the cache key for a quiz with its questions.
func (r *CacheKeyStruct) QuizPayloadKey(quizID string) string {
	return fmt.Sprintf("quiz:%s:payload", quizID)
}

// QuizMonitorChannel returns the Redis PubSub channel name for live staff monitoring.
func (r *CacheKeyStruct) QuizMonitorChannel(quizID string) string {
	return fmt.Sprintf("quiz:%s:monitor", quizID)
}

var CacheKey = NewCacheKeyStruct()
