package server

import (
	"errors"
	"mime"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"parcelquote/internal/export"
	"parcelquote/internal/rate"
)

type quoteRequest struct {
	PackageInfo *rate.PackageInfo `json:"packageInfo" validate:"required"`
}

type batchRequest struct {
	Packages []rate.PackageInfo `json:"packages" validate:"required,min=1,dive"`
}

type exportRequest struct {
	Results []rate.QuoteResult `json:"results" validate:"required,min=1"`
	Format  export.Format      `json:"format" validate:"omitempty,oneof=xlsx csv"`
	Lang    string             `json:"lang"`
	Country string             `json:"country"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if !s.decode(w, r, &req) {
		return
	}
	records, ok := s.allRecords(w, r)
	if !ok {
		return
	}
	set, err := s.ranker.Quote(records, *req.PackageInfo)
	if err != nil {
		s.rankError(w, r, err)
		return
	}
	s.log.Debug("quote computed",
		zap.String("company", req.PackageInfo.Company),
		zap.String("channel", req.PackageInfo.ChannelName),
		zap.String("country", req.PackageInfo.Country),
		zap.Int("results", set.Count))
	writeJSON(w, http.StatusOK, set)
}

func (s *Server) handleQuoteBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !s.decode(w, r, &req) {
		return
	}
	records, ok := s.allRecords(w, r)
	if !ok {
		return
	}
	mq, err := s.ranker.QuoteMany(records, req.Packages)
	if err != nil {
		s.rankError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mq)
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if !s.decode(w, r, &req) {
		return
	}
	records, ok := s.allRecords(w, r)
	if !ok {
		return
	}
	rec, err := s.ranker.Recommend(records, *req.PackageInfo)
	if err != nil {
		s.rankError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if !s.decode(w, r, &req) {
		return
	}
	lang := req.Lang
	if lang == "" {
		lang = r.Header.Get("Accept-Language")
	}
	f, err := export.Render(req.Results, export.Options{Format: req.Format, Lang: lang, Country: req.Country})
	if err != nil {
		if errors.Is(err, export.ErrUnsupportedFormat) {
			writeErrorJSON(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		s.internalError(w, r, "export failed", err)
		return
	}
	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": f.Name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(f.Data)))
	w.WriteHeader(http.StatusOK)
	w.Write(f.Data)
}

func (s *Server) allRecords(w http.ResponseWriter, r *http.Request) ([]rate.RateRecord, bool) {
	records, err := s.records.FetchAllRecords(r.Context())
	if err != nil {
		s.internalError(w, r, "fetch rate records failed", err)
		return nil, false
	}
	return records, true
}

func (s *Server) rankError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, rate.ErrInvalidPackage) {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	s.internalError(w, r, "quote failed", err)
}
