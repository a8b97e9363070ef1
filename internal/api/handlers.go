package api

import (
	"fmt"
	"iter"
	"net/http"

	"github.com/bull/docrag/internal/indexer"
	"github.com/bull/docrag/internal/loader"
	"github.com/bull/docrag/internal/rag"
	"github.com/bull/docrag/internal/retrieval"
)

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	req := QueryRequest{SimilarityTopK: DefaultTopK}
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	answer, err := s.service.Query(r.Context(), retrieval.Query{
		Question:   req.Question,
		IndexNames: req.IndexNames,
		TopK:       req.SimilarityTopK,
	}, req.ChatRecordDir)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.streamAnswer(w, r, answer)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	answer, err := s.service.Chat(r.Context(), req.Question, req.ChatRecordDir)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.streamAnswer(w, r, answer)
}

// streamAnswer writes answer fragments as text/plain, flushing each one.
// The status is chosen on the first fragment, so a model failure before
// any text is still reported as 500. Later failures end the body early.
func (s *Server) streamAnswer(w http.ResponseWriter, r *http.Request, answer *rag.Answer) {
	next, stop := iter.Pull2(answer.Stream)
	defer stop()

	frag, err, ok := next()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)

	for ok {
		if _, werr := fmt.Fprint(w, frag); werr != nil {
			s.logger.Info("Client went away during stream", "error", werr)
			return
		}
		rc.Flush()

		frag, err, ok = next()
		if err != nil {
			s.logger.Error("Answer stream failed", "path", r.URL.Path, "error", err)
			return
		}
	}
}

func (s *Server) handleBuildIndex(w http.ResponseWriter, r *http.Request) {
	req := BuildIndexRequest{
		IndexType:    DefaultIndexType,
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
		Overwrite:    true,
	}
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.InputPath.Empty() {
		s.writeError(w, r, loader.ErrNoInputFiles)
		return
	}

	res, err := s.service.BuildIndex(r.Context(), indexer.Request{
		Input: loader.Input{
			Dir:        req.InputPath.Dir,
			Files:      req.InputPath.Files,
			Extensions: req.FileExtension,
		},
		IndexName:    req.IndexName,
		IndexType:    req.IndexType,
		ChunkSize:    req.ChunkSize,
		ChunkOverlap: req.ChunkOverlap,
		ChunkSizes:   req.ChunkSizes,
		WindowSize:   req.WindowSize,
		Overwrite:    req.Overwrite,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, BuildIndexResponse{
		Status:    "success",
		Message:   fmt.Sprintf("Index '%s' built successfully", res.IndexName),
		NumFiles:  res.NumFiles,
		NumNodes:  res.NumNodes,
		IndexType: string(res.Strategy),
	})
}

func (s *Server) handleIndexNames(w http.ResponseWriter, r *http.Request) {
	names, err := s.service.IndexNames(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, IndexNamesResponse{Status: "success", IndexNames: names})
}

func (s *Server) handleDeleteIndex(w http.ResponseWriter, r *http.Request) {
	var req DeleteIndexRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.service.DeleteIndex(r.Context(), req.IndexName); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:  "success",
		Message: fmt.Sprintf("Index '%s' deleted", req.IndexName),
	})
}
