package index

// Posting records where one term occurs in one document. Positions are word
// positions, ascending.
type Posting struct {
	DocID     string `json:"doc_id"`
	Frequency int    `json:"frequency"`
	Positions []int  `json:"positions"`
}

type PostingList []Posting

type TermEntry struct {
	Term     string
	Postings PostingList
}
