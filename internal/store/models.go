package store

import (
	"encoding/json"
	"fmt"
	"time"
)

type IntentionType string

const (
	IntentionProcess   IntentionType = "PROCESS"
	IntentionTransform IntentionType = "TRANSFORM"
	IntentionMaintain  IntentionType = "MAINTAIN"
	IntentionExplore   IntentionType = "EXPLORE"
)

func (t IntentionType) Valid() bool {
	switch t {
	case IntentionProcess, IntentionTransform, IntentionMaintain, IntentionExplore:
		return true
	}
	return false
}

type Tone string

const (
	ToneSimilar     Tone = "similar"
	ToneContrasting Tone = "contrasting"
	ToneProgressive Tone = "progressive"
)

func (t Tone) Valid() bool {
	switch t {
	case ToneSimilar, ToneContrasting, ToneProgressive:
		return true
	}
	return false
}

type Sentiment struct {
	ID               int64    `json:"id"`
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	ShortDescription string   `json:"shortDescription,omitempty"`
	Keywords         []string `json:"keywords"`
}

// JourneyGraph is a sentiment's decision tree as stored, before validation.
type JourneyGraph struct {
	ID          int64  `json:"id"`
	SentimentID int64  `json:"sentimentId"`
	Steps       []Step `json:"steps"`
	// Dropped lists suggestions left out because their movie row could not
	// be decoded.
	Dropped []RowError `json:"-"`
}

// RowError is a movie row that could not be decoded and was left out of a
// result. SuggestionID and OptionID are set for graph suggestions only.
type RowError struct {
	MovieID      string
	SuggestionID int64
	OptionID     int64
	Err          error
}

func (e RowError) Error() string {
	return fmt.Sprintf("movie %s: %v", e.MovieID, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

type Step struct {
	ID       int64    `json:"id"`
	GraphID  int64    `json:"graphId"`
	StepKey  string   `json:"stepId"`
	Order    int      `json:"order"`
	Question string   `json:"question"`
	Options  []Option `json:"options"`
}

type Option struct {
	ID          int64             `json:"id"`
	StepID      int64             `json:"-"`
	Text        string            `json:"text"`
	NextStepKey *string           `json:"nextStepId"`
	IsEndState  bool              `json:"isEndState"`
	Suggestions []MovieSuggestion `json:"movieSuggestions"`
}

// MovieSuggestion attaches a movie to a leaf option. RelevanceScore is the
// cached leaf-coverage score; nil means it has not been computed.
type MovieSuggestion struct {
	ID             int64    `json:"id"`
	OptionID       int64    `json:"optionId"`
	MovieID        string   `json:"movieId"`
	Reason         string   `json:"reason"`
	Relevance      *int     `json:"relevance"`
	RelevanceScore *float64 `json:"relevanceScore"`
	Movie          *Movie   `json:"movie,omitempty"`
}

type Movie struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Year        *int     `json:"year,omitempty"`
	Genres      []string `json:"genres"`
	VoteAverage *float64 `json:"voteAverage,omitempty"`
	Thumbnail   *string  `json:"thumbnail,omitempty"`
	Runtime     *int     `json:"runtime,omitempty"`
}

type EmotionalTag struct {
	ID          int64  `json:"id"`
	SentimentID int64  `json:"sentimentId"`
	Name        string `json:"name"`
}

type MovieTag struct {
	MovieID     string  `json:"movieId"`
	TagID       int64   `json:"tagId"`
	SentimentID int64   `json:"sentimentId"`
	TagName     string  `json:"tagName"`
	Relevance   float64 `json:"relevance"`
}

type MovieWithTags struct {
	Movie
	Tags []MovieTag `json:"tags"`
}

// TagNames returns the movie's tag names in link order, duplicates included.
func (m *MovieWithTags) TagNames() []string {
	out := make([]string, len(m.Tags))
	for i, t := range m.Tags {
		out[i] = t.TagName
	}
	return out
}

type Intention struct {
	ID              int64              `json:"id"`
	SentimentID     int64              `json:"sentimentId"`
	Type            IntentionType      `json:"type"`
	Description     string             `json:"description"`
	PreferredGenres []string           `json:"preferredGenres"`
	AvoidGenres     []string           `json:"avoidGenres"`
	EmotionalTone   Tone               `json:"emotionalTone"`
	TagWeights      map[string]float64 `json:"tagWeights"`
}

type StepOverride struct {
	ID             int64   `json:"id"`
	IntentionID    int64   `json:"intentionId"`
	StepID         int64   `json:"stepId"`
	Priority       int     `json:"priority"`
	CustomQuestion *string `json:"customQuestion,omitempty"`
	ContextualHint *string `json:"contextualHint,omitempty"`
	IsRequired     bool    `json:"isRequired"`
}

type Session struct {
	ID          string          `json:"id"`
	UserID      *string         `json:"userId,omitempty"`
	SentimentID int64           `json:"sentimentId"`
	IntentionID int64           `json:"intentionId"`
	CreatedAt   time.Time       `json:"createdAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	IsActive    bool            `json:"isActive"`
	Context     json.RawMessage `json:"context,omitempty"`
}

type SuggestionRecord struct {
	ID                 int64           `json:"id"`
	SessionID          string          `json:"sessionId"`
	MovieID            string          `json:"movieId"`
	MovieTitle         string          `json:"movieTitle,omitempty"`
	PersonalizedReason string          `json:"personalizedReason"`
	RelevanceScore     float64         `json:"relevanceScore"`
	IntentionAlignment float64         `json:"intentionAlignment"`
	Viewed             bool            `json:"wasViewed"`
	Accepted           bool            `json:"wasAccepted"`
	Feedback           *string         `json:"userFeedback,omitempty"`
	ContextualFactors  json.RawMessage `json:"contextualFactors,omitempty"`
}

// FeedbackUpdate overwrites the feedback fields of a suggestion record.
type FeedbackUpdate struct {
	Viewed   bool
	Accepted bool
	Feedback *string
}

type SessionDetail struct {
	Session
	SentimentName string             `json:"sentimentName"`
	IntentionType IntentionType      `json:"intentionType"`
	Suggestions   []SuggestionRecord `json:"suggestions"`
}

type IntentionCount struct {
	IntentionType IntentionType `json:"intention"`
	SentimentName string        `json:"sentiment"`
	Count         int           `json:"count"`
}

type SessionStats struct {
	TotalSessions       int              `json:"totalSessions"`
	ActiveSessions      int              `json:"activeSessions"`
	CompletedSessions   int              `json:"completedSessions"`
	TotalSuggestions    int              `json:"totalSuggestions"`
	AcceptedSuggestions int              `json:"acceptedSuggestions"`
	ByIntention         []IntentionCount `json:"intentionStats"`
}

// RecalcFilter selects movie suggestions for rescoring. Zero fields do not
// filter. BelowScore keeps rows whose score is nil or strictly below it.
type RecalcFilter struct {
	MovieID    string
	OptionID   int64
	BelowScore *float64
}
