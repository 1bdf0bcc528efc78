package discourse

// AnalysisResult is the typed graph payload produced by one /analyze call.
// Nodes are referenced positionally: edge and annotation records point at
// entries of Inodes and Snodes by index. An analysis that found nothing has
// every slice empty.
type AnalysisResult struct {
	Inodes          []ResultINode        `json:"inodes"`
	Snodes          []ResultSNode        `json:"snodes"`
	Edges           []ResultEdge         `json:"edges"`
	Enthymemes      []ResultEnthymeme    `json:"enthymemes"`
	Questions       []ResultQuestion     `json:"socratic_questions"`
	ExtractedValues []ResultValue        `json:"extracted_values"`
	Concepts        []ResultConcept      `json:"concepts"`
	ConceptMentions []ResultMention      `json:"concept_mentions"`
	Equivocations   []ResultEquivocation `json:"equivocations"`
	Sources         []ResultSource       `json:"sources"`
	Embeddings      [][]float32          `json:"embeddings_1536,omitempty"`
}

// Empty reports whether the engine produced no argument structure at all.
func (r *AnalysisResult) Empty() bool {
	return len(r.Inodes) == 0 && len(r.Snodes) == 0
}

// ResultINode is one extracted information node.
type ResultINode struct {
	Content              string  `json:"content"`
	RewrittenContent     *string `json:"rewritten_content,omitempty"`
	EpistemicType        string  `json:"epistemic_type"`
	SpanStart            int     `json:"span_start"`
	SpanEnd              int     `json:"span_end"`
	FVPConfidence        float64 `json:"fvp_confidence"`
	ExtractionConfidence float64 `json:"extraction_confidence"`
	FactSubtype          *string `json:"fact_subtype,omitempty"`
	SourceIndex          *int    `json:"source_index,omitempty"`
}

// ResultSNode is one extracted scheme node.
type ResultSNode struct {
	Direction          string  `json:"direction"`
	LogicType          *string `json:"logic_type,omitempty"`
	Confidence         float64 `json:"confidence"`
	GapDetected        bool    `json:"gap_detected"`
	FallacyType        *string `json:"fallacy_type,omitempty"`
	FallacyExplanation *string `json:"fallacy_explanation,omitempty"`
}

// ResultEdge connects a scheme to an I-node or, for premises, a source.
type ResultEdge struct {
	SnodeIndex  int    `json:"snode_index"`
	InodeIndex  *int   `json:"inode_index,omitempty"`
	SourceIndex *int   `json:"source_index,omitempty"`
	Role        string `json:"role"`
}

// ResultEnthymeme is a reconstructed missing premise on a scheme.
type ResultEnthymeme struct {
	SnodeIndex  int     `json:"snode_index"`
	Content     string  `json:"content"`
	FVPType     string  `json:"fvp_type"`
	Probability float64 `json:"probability"`
}

// ResultQuestion is a Socratic question attached to a scheme.
type ResultQuestion struct {
	SnodeIndex  int     `json:"snode_index"`
	Question    string  `json:"question"`
	Uncertainty float64 `json:"uncertainty"`
}

// ResultValue names a value appealed to by a VALUE I-node.
type ResultValue struct {
	InodeIndex int    `json:"inode_index"`
	ValueName  string `json:"value_name"`
}

// ResultConcept is a (term, definition) pair; mentions point at it by index.
type ResultConcept struct {
	Term       string    `json:"term"`
	Definition string    `json:"definition"`
	Embedding  []float32 `json:"embedding_1536,omitempty"`
}

// ResultMention records a term occurrence in an I-node.
type ResultMention struct {
	InodeIndex   int    `json:"inode_index"`
	ConceptIndex int    `json:"concept_index"`
	Term         string `json:"term"`
}

// ResultEquivocation flags one term used with two concepts across a scheme.
type ResultEquivocation struct {
	SnodeIndex             int    `json:"snode_index"`
	Term                   string `json:"term"`
	PremiseConceptIndex    int    `json:"premise_concept_index"`
	ConclusionConceptIndex int    `json:"conclusion_concept_index"`
}

// ResultSource is an external reference at one hierarchy level.
type ResultSource struct {
	Level       string  `json:"level"`
	ParentIndex *int    `json:"parent_index,omitempty"`
	URL         *string `json:"url,omitempty"`
	Title       *string `json:"title,omitempty"`
	Reputation  float64 `json:"reputation"`
}
