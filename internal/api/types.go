package api

import (
	"encoding/json"
	"errors"
)

// InputPath is either a directory (JSON string) or a list of files.
type InputPath struct {
	Dir   string
	Files []string
}

// UnmarshalJSON accepts a string or an array of strings.
func (p *InputPath) UnmarshalJSON(data []byte) error {
	var dir string
	if err := json.Unmarshal(data, &dir); err == nil {
		*p = InputPath{Dir: dir}
		return nil
	}
	var files []string
	if err := json.Unmarshal(data, &files); err != nil {
		return errors.New("input_path must be a directory path or a list of file paths")
	}
	*p = InputPath{Files: files}
	return nil
}

// MarshalJSON writes the form that was decoded.
func (p InputPath) MarshalJSON() ([]byte, error) {
	if p.Files != nil {
		return json.Marshal(p.Files)
	}
	return json.Marshal(p.Dir)
}

// Empty reports whether neither a directory nor files were given.
func (p InputPath) Empty() bool {
	return p.Dir == "" && len(p.Files) == 0
}

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	Question       string   `json:"question" validate:"required"`
	IndexNames     []string `json:"index_names" validate:"required,min=1,dive,required"`
	SimilarityTopK int      `json:"similarity_top_k" validate:"gte=1"`
	ChatRecordDir  string   `json:"chat_record_dir"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Question      string `json:"question" validate:"required"`
	ChatRecordDir string `json:"chat_record_dir"`
}

// BuildIndexRequest is the body of POST /build-index.
type BuildIndexRequest struct {
	InputPath     InputPath `json:"input_path"`
	IndexName     string    `json:"index_name" validate:"required"`
	IndexType     string    `json:"index_type"`
	FileExtension string    `json:"file_extension"`
	ChunkSize     int       `json:"chunk_size"`
	ChunkOverlap  int       `json:"chunk_overlap"`
	ChunkSizes    []int     `json:"chunk_sizes"`
	WindowSize    int       `json:"window_size"`
	Overwrite     bool      `json:"overwrite"`
}

// BuildIndexResponse reports a finished build.
type BuildIndexResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	NumFiles  int    `json:"num_files"`
	NumNodes  int    `json:"num_nodes"`
	IndexType string `json:"index_type"`
}

// IndexNamesResponse is returned by POST /get-index-names.
type IndexNamesResponse struct {
	Status     string   `json:"status"`
	IndexNames []string `json:"index_names"`
}

// DeleteIndexRequest is the body of POST /delete-index.
type DeleteIndexRequest struct {
	IndexName string `json:"index_name" validate:"required"`
}

// StatusResponse is a generic success body.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
