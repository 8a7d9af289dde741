// Package web serves the node status over HTTP.
package web

import (
	"encoding/json"
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/michcald/loranode/node"
	"github.com/michcald/loranode/store"
	"github.com/michcald/loranode/sx1262"
)

// Radio is the read side of the radio driver.
type Radio interface {
	State() sx1262.State
	Config() sx1262.RadioConfig
	LastPacketStatus() sx1262.PacketStatus
	Err() error
	String() string
}

type Server struct {
	appName string
	logger  log.Logger
	node    *node.Node
	// radio is nil when running without hardware.
	radio Radio
}

func NewServer(appName string, logger log.Logger, n *node.Node, radio Radio) *Server {
	logger = log.With(logger, "component", "web")
	return &Server{
		appName: appName,
		logger:  logger,
		node:    n,
		radio:   radio,
	}
}

// Handler routes the API, metrics and health endpoints.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/radio", s.RadioQuery).Methods(http.MethodGet)
	r.HandleFunc("/api/contacts", s.ContactsQuery).Methods(http.MethodGet)
	r.HandleFunc("/api/messages/count", s.MessagesCountQuery).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.Healthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler())

	cors := handlers.CORS(handlers.AllowedOrigins([]string{"*"}))
	return handlers.CompressHandler(cors(r))
}

type radioConfig struct {
	FrequencyHz     uint32 `json:"frequency_hz"`
	BandwidthHz     uint32 `json:"bandwidth_hz"`
	SpreadingFactor uint8  `json:"spreading_factor"`
	CodingRate      uint8  `json:"coding_rate"`
	TxPower         int8   `json:"tx_power"`
	SyncWord        uint16 `json:"sync_word"`
}

type radioStatus struct {
	App     string      `json:"app"`
	Role    node.Role   `json:"role"`
	Online  bool        `json:"online"`
	State   string      `json:"state,omitempty"`
	Summary string      `json:"summary,omitempty"`
	Config  radioConfig `json:"config"`
	RSSI    float32     `json:"last_rssi"`
	SNR     float32     `json:"last_snr"`
	Fault   string      `json:"fault,omitempty"`
	Peers   int         `json:"peers"`
}

func (s *Server) RadioQuery(w http.ResponseWriter, r *http.Request) {
	c := s.node.Radio.Config()
	res := radioStatus{
		App:    s.appName,
		Role:   s.node.Role,
		Online: s.radio != nil,
		Config: radioConfig{
			FrequencyHz:     c.FrequencyHz,
			BandwidthHz:     c.BandwidthHz,
			SpreadingFactor: c.SpreadingFactor,
			CodingRate:      c.CodingRate,
			TxPower:         c.TxPower,
			SyncWord:        c.SyncWord,
		},
		Peers: s.node.PeerCount(),
	}
	if s.radio != nil {
		st := s.radio.LastPacketStatus()
		res.State = s.radio.State().String()
		res.Summary = s.radio.String()
		res.RSSI, res.SNR = st.RSSI, st.SNR
		if err := s.radio.Err(); err != nil {
			res.Fault = err.Error()
		}
	}
	s.writeJSON(w, res)
}

func (s *Server) ContactsQuery(w http.ResponseWriter, r *http.Request) {
	contacts, err := s.node.Contacts.List(r.Context())
	if err != nil {
		level.Error(s.logger).Log("msg", "can't list contacts", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if contacts == nil {
		contacts = []store.Contact{}
	}
	s.writeJSON(w, contacts)
}

func (s *Server) MessagesCountQuery(w http.ResponseWriter, r *http.Request) {
	n, err := s.node.Messages.Len(r.Context())
	if err != nil {
		level.Error(s.logger).Log("msg", "can't count messages", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]int{"count": n})
}

// Healthz fails once the radio reported a hardware fault.
func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	if s.radio != nil {
		if err := s.radio.Err(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.Write([]byte("ok"))
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		level.Error(s.logger).Log("msg", "can't marshal json", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(b)
}
