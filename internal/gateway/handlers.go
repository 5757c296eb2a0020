// Copyright 2026 The NATS Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nats-io/objstore"
)

// Headers set on object responses.
const (
	HeaderTransferID = "Nats-Transfer-Id"
	HeaderChunks     = "Nats-Chunks"
	HeaderDeleted    = "Nats-Deleted"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func statusOf(err error) int {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return http.StatusRequestEntityTooLarge
	}
	switch objstore.KindOf(err) {
	case objstore.KindInvalidArgument:
		return http.StatusBadRequest
	case objstore.KindNotFound:
		return http.StatusNotFound
	case objstore.KindTimeout:
		return http.StatusGatewayTimeout
	case objstore.KindOutOfMemory:
		return http.StatusRequestEntityTooLarge
	case objstore.KindDecode:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error(), Kind: objstore.KindOf(err).String()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("failed to write response", zap.Error(err))
	}
}

func setObjectHeaders(h http.Header, meta *objstore.ObjectMeta) {
	h.Set(HeaderTransferID, meta.TransferID)
	h.Set(HeaderChunks, strconv.FormatInt(meta.Chunks, 10))
	if meta.Digest != "" {
		h.Set("ETag", strconv.Quote(meta.Digest))
	}
	if !meta.ModTime.IsZero() {
		h.Set("Last-Modified", meta.ModTime.UTC().Format(http.TimeFormat))
	}
}

func (s *Server) createBucket(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	cfg := s.cfg.Bucket
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{
				Error: Error.Wrap(err).Error(),
				Kind:  objstore.KindInvalidArgument.String(),
			})
			return
		}
	}
	cfg.Bucket = bucket

	st, err := objstore.New(r.Context(), s.cfg.Bus, cfg, s.storeOptions()...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.mu.Lock()
	if old, ok := s.stores[bucket]; ok {
		_ = old.Close()
	}
	s.stores[bucket] = st
	s.mu.Unlock()

	status, err := st.Status(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, status)
}

func (s *Server) bucketStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.store(r.Context(), chi.URLParam(r, "bucket"), false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status, err := st.Status(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) deleteBucket(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	s.forget(bucket)
	if err := objstore.Delete(r.Context(), s.cfg.Bus, bucket); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listObjects(w http.ResponseWriter, r *http.Request) {
	st, err := s.store(r.Context(), chi.URLParam(r, "bucket"), false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var opts []objstore.ListOpt
	if deleted, _ := strconv.ParseBool(r.URL.Query().Get("deleted")); deleted {
		opts = append(opts, objstore.ListShowDeleted())
	}
	objs, err := st.List(r.Context(), opts...)
	switch {
	case errors.Is(err, objstore.ErrNoObjectsFound):
		objs = []*objstore.ObjectMeta{}
	case err != nil:
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, objs)
}

func (s *Server) putObject(w http.ResponseWriter, r *http.Request) {
	st, err := s.store(r.Context(), chi.URLParam(r, "bucket"), true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body := r.Body
	if s.cfg.MaxObjectSize > 0 {
		body = http.MaxBytesReader(w, r.Body, s.cfg.MaxObjectSize)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	name := chi.URLParam(r, "*")
	err = st.Put(r.Context(), objstore.ObjectElement{
		Meta: objstore.ObjectMeta{Name: name, TransferID: r.Header.Get(HeaderTransferID)},
		Data: data,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	meta, err := st.Info(r.Context(), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	setObjectHeaders(w.Header(), meta)
	s.writeJSON(w, http.StatusCreated, meta)
}

// liveInfo returns the record of the object named by r, treating a removed
// object as missing.
func (s *Server) liveInfo(r *http.Request) (*objstore.Store, *objstore.ObjectMeta, error) {
	st, err := s.store(r.Context(), chi.URLParam(r, "bucket"), false)
	if err != nil {
		return nil, nil, err
	}
	meta, err := st.Info(r.Context(), chi.URLParam(r, "*"))
	if err != nil {
		return nil, nil, err
	}
	if meta.Deleted {
		return nil, nil, objstore.ErrObjectNotFound
	}
	return st, meta, nil
}

func (s *Server) headObject(w http.ResponseWriter, r *http.Request) {
	_, meta, err := s.liveInfo(r)
	if err != nil {
		w.WriteHeader(statusOf(err))
		return
	}
	setObjectHeaders(w.Header(), meta)
	w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) getObject(w http.ResponseWriter, r *http.Request) {
	st, meta, err := s.liveInfo(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	obj, err := st.Get(r.Context(), meta.Name, s.cfg.ChunkTimeout)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	setObjectHeaders(w.Header(), &obj.Meta)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(obj.Data); err != nil {
		s.log.Debug("failed to write object", zap.String("name", meta.Name), zap.Error(err))
	}
}

func (s *Server) removeObject(w http.ResponseWriter, r *http.Request) {
	st, err := s.store(r.Context(), chi.URLParam(r, "bucket"), false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := st.Remove(r.Context(), chi.URLParam(r, "*")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
