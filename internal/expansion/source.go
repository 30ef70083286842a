package expansion

import "context"

// Result is one retrieved extent. Score is a log-domain retrieval score when
// it comes back from a Retriever and a posterior probability once the model
// has normalised the result set.
type Result struct {
	DocumentID string  `json:"doc_id"`
	Score      float64 `json:"score"`
	Begin      int     `json:"begin"`
	End        int     `json:"end"`
}

// Length returns the number of token positions covered by the extent.
func (r Result) Length() int {
	return r.End - r.Begin
}

// DocumentVector is the forward-index view of one document. Positions holds,
// for every token position, an index into Stems; the value 0 marks a token
// that was filtered out of the vocabulary (Stems[0] is never a real term).
type DocumentVector struct {
	Positions []int    `json:"positions"`
	Stems     []string `json:"stems"`
}

// Retriever executes a query and returns its scored extents, best first.
type Retriever interface {
	RunQuery(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// VectorProvider returns the document vectors for the given document IDs, in
// the same order.
type VectorProvider interface {
	DocumentVectors(ctx context.Context, documentIDs []string) ([]DocumentVector, error)
}

// CollectionStats exposes the background counts used by the language-model
// scorer. ExpressionCount counts exact, ordered, adjacent occurrences of the
// phrase and may be slow.
type CollectionStats interface {
	TermCount(ctx context.Context) (float64, error)
	StemCount(ctx context.Context, stem string) (float64, error)
	ExpressionCount(ctx context.Context, phrase []string) (float64, error)
}

// TermScoreFunction scores an occurrence count within a context of the given
// length. The returned value is a log probability.
type TermScoreFunction interface {
	ScoreOccurrence(occurrences, contextLength float64) float64
}

// SmoothingFactory builds a TermScoreFunction for the named smoothing
// strategy from a gram's background count and the collection size.
type SmoothingFactory interface {
	Get(name string, gramCount, collectionCount float64) (TermScoreFunction, error)
}

// Sources bundles the collaborators a Model talks to. Retriever is only
// needed by Generate; Stats and Smoothing only by the language-model scorer.
type Sources struct {
	Retriever Retriever
	Vectors   VectorProvider
	Stats     CollectionStats
	Smoothing SmoothingFactory
}
