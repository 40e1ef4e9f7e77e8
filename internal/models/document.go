package models

// Chunk is a bounded slice of a CV's text, the unit of embedding and retrieval.
type Chunk struct {
	Source string // path of the originating file in the staging directory
	Seq    int    // position of the chunk within the document
	Text   string
}

// ScoredChunk pairs a retrieved chunk with its similarity to the query.
type ScoredChunk struct {
	Chunk      Chunk
	Similarity float64
}

// Candidate is the per-document view of a retrieval result: all chunks that
// came back for one source file, merged into a single context.
type Candidate struct {
	Source     string
	Filename   string
	Text       string
	Similarity float64 // mean similarity of the contributing chunks
}

// Profile holds structured signals pulled out of a CV by pattern matching.
type Profile struct {
	Emails    []string
	LinkedIn  []string
	GitHub    []string
	Education []string
	Projects  []string
}

// Empty reports whether no field matched anything.
func (p Profile) Empty() bool {
	return len(p.Emails) == 0 && len(p.LinkedIn) == 0 && len(p.GitHub) == 0 &&
		len(p.Education) == 0 && len(p.Projects) == 0
}

// Evaluation is the terminal record for one candidate in one screening run.
type Evaluation struct {
	Source        string
	Filename      string
	Similarity    float64
	LLMScore      int
	Combined      float64 // only meaningful when selection is enabled
	Justification string
	Profile       *Profile
	Promoted      bool
	Failed        bool // the generative call for this candidate did not complete
}
