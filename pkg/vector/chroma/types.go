package chroma

// chromaCollection represents a Chroma collection response.
type chromaCollection struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Dimension *int           `json:"dimension,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// chromaCreateCollectionRequest is the request body for creating a collection.
type chromaCreateCollectionRequest struct {
	Name        string         `json:"name"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	GetOrCreate bool           `json:"get_or_create"`
}

// chromaUpsertRequest is the request body for upserting records.
type chromaUpsertRequest struct {
	IDs        []string            `json:"ids"`
	Embeddings [][]float32         `json:"embeddings"`
	Metadatas  []map[string]string `json:"metadatas,omitempty"`
	Documents  []string            `json:"documents,omitempty"`
}

// chromaQueryRequest is the request body for querying.
type chromaQueryRequest struct {
	QueryEmbeddings [][]float32 `json:"query_embeddings"`
	NResults        int         `json:"n_results"`
	Include         []string    `json:"include"`
}

// chromaQueryResponse is the response from a query.
type chromaQueryResponse struct {
	IDs        [][]string            `json:"ids"`
	Distances  [][]float64           `json:"distances"`
	Metadatas  [][]map[string]string `json:"metadatas"`
	Embeddings [][][]float32         `json:"embeddings"`
}

// chromaGetRequest is the request body for getting records.
type chromaGetRequest struct {
	IDs     []string `json:"ids,omitempty"`
	Limit   *int     `json:"limit,omitempty"`
	Offset  *int     `json:"offset,omitempty"`
	Include []string `json:"include"`
}

// chromaGetResponse is the response from getting records.
type chromaGetResponse struct {
	IDs        []string            `json:"ids"`
	Metadatas  []map[string]string `json:"metadatas"`
	Embeddings [][]float32         `json:"embeddings"`
}
