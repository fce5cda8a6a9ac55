package server

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"parcelquote/internal/rate"
	"parcelquote/internal/tariff"
)

type channelList struct {
	Channels []tariff.ChannelView `json:"channels"`
	Count    int                  `json:"count"`
}

type companyChannels struct {
	Company  string   `json:"company"`
	Channels []string `json:"channels"`
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := tariff.ChannelFilter{
		Country:       strings.TrimSpace(q.Get("country")),
		Company:       strings.TrimSpace(q.Get("company")),
		TransportType: strings.TrimSpace(q.Get("transportType")),
	}
	if ct := q.Get("cargoType"); strings.TrimSpace(ct) != "" {
		f.CargoType = rate.ParseCargoType(ct)
		if !f.CargoType.Valid() {
			writeErrorJSON(w, http.StatusBadRequest, "invalid_request", "unknown cargoType "+ct)
			return
		}
	}
	views, err := s.catalog.ChannelViews(r.Context(), f)
	if err != nil {
		s.internalError(w, r, "list channels failed", err)
		return
	}
	writeJSON(w, http.StatusOK, channelList{Channels: views, Count: len(views)})
}

// handleLogistics walks the company -> channel -> country cascade; the
// query parameters given select the level answered.
func (s *Server) handleLogistics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	company := strings.TrimSpace(q.Get("company"))
	channel := strings.TrimSpace(q.Get("channel"))

	switch {
	case company == "" && channel != "":
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request", "company required with channel")
	case company == "":
		ov, err := s.catalog.Overview(r.Context())
		if err != nil {
			s.internalError(w, r, "logistics overview failed", err)
			return
		}
		writeJSON(w, http.StatusOK, ov)
	case channel == "":
		chans, err := s.catalog.Channels(company)
		if err != nil {
			s.catalogError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, companyChannels{Company: company, Channels: chans})
	default:
		cc, err := s.catalog.ChannelCountries(r.Context(), company, channel)
		if err != nil {
			s.catalogError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, cc)
	}
}

func (s *Server) handleCountries(w http.ResponseWriter, r *http.Request) {
	bd, err := s.catalog.BaseData(r.Context())
	if err != nil {
		s.internalError(w, r, "base data failed", err)
		return
	}
	writeJSON(w, http.StatusOK, bd)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.records.Invalidate(r.Context()); err != nil {
		s.internalError(w, r, "invalidate rate cache failed", err)
		return
	}
	var by string
	if c := claimsFrom(r.Context()); c != nil {
		by = c.UserID
	}
	s.log.Info("rate cache invalidated", zap.String("user_id", by), zap.String("request_id", requestID(r)))
	writeJSON(w, http.StatusOK, map[string]bool{"invalidated": true})
}

func (s *Server) catalogError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tariff.ErrUnknownProvider):
		writeErrorJSON(w, http.StatusNotFound, "unknown_company", err.Error())
	case errors.Is(err, tariff.ErrUnknownChannel):
		writeErrorJSON(w, http.StatusNotFound, "unknown_channel", err.Error())
	default:
		s.internalError(w, r, "logistics lookup failed", err)
	}
}
