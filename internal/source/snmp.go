// Package source captures live time series into variables.
//
// The SNMP source polls a single OID of an agent at a fixed interval.
// Counter types are converted to per-second rates; gauges are stored as
// read.
package source

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/xtxerr/tplot/config"
	"github.com/xtxerr/tplot/internal/errors"
	"github.com/xtxerr/tplot/internal/logging"
	"github.com/xtxerr/tplot/internal/storage/buffer"
	"github.com/xtxerr/tplot/internal/tvar"
	"github.com/xtxerr/tplot/internal/validation"
)

var log = logging.Component("snmp")

func init() {
	validation.RegisterChoice("seclevel", "", "noAuthNoPriv", "authNoPriv", "authPriv")
	validation.RegisterChoice("authproto", "", "MD5", "SHA", "SHA224", "SHA256", "SHA384", "SHA512")
	validation.RegisterChoice("privproto", "", "DES", "AES", "AES192", "AES256")
}

// =============================================================================
// SNMP Configuration
// =============================================================================

// SNMPConfig holds SNMP capture configuration.
type SNMPConfig struct {
	Host string `validate:"required"`
	Port uint16
	OID  string `validate:"required"`

	// v2c
	Community string

	// v3
	SecurityName  string
	SecurityLevel string `validate:"seclevel"`
	AuthProtocol  string `validate:"authproto"`
	AuthPassword  string
	PrivProtocol  string `validate:"privproto"`
	PrivPassword  string
	ContextName   string

	// Timing
	TimeoutMs uint32
	Retries   uint32
	Interval  time.Duration `validate:"gte=0"`
	Count     int           `validate:"gte=0"`

	// Follow polls until the context is cancelled instead of Count times.
	Follow bool

	// Window bounds the samples kept; older samples are dropped. Zero
	// keeps Count samples, or DefaultSNMPWindow when following.
	Window int `validate:"gte=0"`
}

var oidPattern = regexp.MustCompile(`^\.?[0-9]+(\.[0-9]+)*$`)

// Validate checks the configuration.
func (c *SNMPConfig) Validate() error {
	if err := validation.Struct(c); err != nil {
		return err
	}
	if !oidPattern.MatchString(c.OID) {
		return errors.Wrapf(errors.ErrInvalidOID, "%q", c.OID)
	}
	if c.SecurityName == "" && c.Community == "" {
		return errors.NewValidation("community", "SNMP v2c requires a community string")
	}
	return nil
}

func (c *SNMPConfig) withDefaults() SNMPConfig {
	out := *c
	if out.Port == 0 {
		out.Port = config.DefaultSNMPPort
	}
	if out.TimeoutMs == 0 {
		out.TimeoutMs = config.DefaultSNMPTimeoutMs
	}
	if out.Retries == 0 {
		out.Retries = config.DefaultSNMPRetries
	}
	if out.Interval == 0 {
		out.Interval = config.DefaultSNMPIntervalMs * time.Millisecond
	}
	if out.Count == 0 {
		out.Count = config.DefaultSNMPCount
	}
	if out.Window == 0 {
		out.Window = out.Count
		if out.Follow {
			out.Window = config.DefaultSNMPWindow
		}
	}
	return out
}

// =============================================================================
// Capture
// =============================================================================

// Client is the subset of *gosnmp.GoSNMP used by the capturer.
type Client interface {
	Connect() error
	Get(oids []string) (*gosnmp.SnmpPacket, error)
	Close() error
}

type goSNMPClient struct {
	*gosnmp.GoSNMP
}

func (c goSNMPClient) Close() error {
	if c.Conn == nil {
		return nil
	}
	return c.Conn.Close()
}

// SNMPCapturer polls an agent and collects the samples.
type SNMPCapturer struct {
	// Dial creates the client for a configuration. Tests replace it.
	Dial func(cfg *SNMPConfig) Client

	// Now returns the sample time.
	Now func() time.Time
}

// NewSNMPCapturer creates a capturer that talks to real agents.
func NewSNMPCapturer() *SNMPCapturer {
	return &SNMPCapturer{
		Dial: func(cfg *SNMPConfig) Client { return goSNMPClient{createClient(cfg)} },
		Now:  time.Now,
	}
}

// sample is one poll result.
type sample struct {
	t       time.Time
	value   float64
	counter bool
	wrap    float64 // counter modulus, 0 if unknown
	ok      bool
}

// Capture polls cfg.OID cfg.Count times, cfg.Interval apart, and returns
// the samples as variable data. With cfg.Follow it polls until ctx is
// cancelled and returns what it collected. Only the last cfg.Window
// samples are kept. Failed polls become NaN samples; a capture in which
// every kept poll failed is an error.
func (c *SNMPCapturer) Capture(ctx context.Context, cfg *SNMPConfig) (tvar.Data, error) {
	if err := cfg.Validate(); err != nil {
		return tvar.Data{}, err
	}
	full := cfg.withDefaults()

	client := c.Dial(&full)
	if err := client.Connect(); err != nil {
		return tvar.Data{}, errors.Wrapf(errors.ErrConnectionFailed, "%s:%d: %v", full.Host, full.Port, err)
	}
	defer client.Close()

	log.Info("capture started", "host", full.Host, "oid", full.OID, "count", full.Count, "interval", full.Interval)

	buf := buffer.New[sample](full.Window)
	var lastErr error
	var kind string

	ticker := time.NewTicker(full.Interval)
	defer ticker.Stop()

poll:
	for i := 0; full.Follow || i < full.Count; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
			case <-ticker.C:
			}
			if err := ctx.Err(); err != nil {
				if full.Follow {
					break poll
				}
				return tvar.Data{}, err
			}
		}

		s, typ, err := c.poll(client, full.OID)
		if err != nil {
			if !errors.IsRetriable(err) {
				return tvar.Data{}, err
			}
			lastErr = err
			log.Warn("poll failed", "host", full.Host, "oid", full.OID, "error", err)
		} else if kind == "" {
			kind = typ
		}
		buf.PushOverwrite(s)
	}

	samples := buf.Snapshot()
	if lastErr != nil && !anyOK(samples) {
		return tvar.Data{}, lastErr
	}
	if st := buf.Stats(); st.DropCount > 0 {
		log.Info("capture window full, oldest samples dropped", "dropped", st.DropCount, "kept", st.Count)
	}

	d := toData(samples)
	d.Metadata = map[string]interface{}{
		"source": "snmp",
		"host":   full.Host,
		"oid":    full.OID,
		"type":   kind,
	}
	for _, s := range samples {
		if s.counter {
			d.Metadata["units"] = "1/s"
			break
		}
	}
	log.Info("capture finished", "host", full.Host, "oid", full.OID, "samples", len(samples))
	return d, nil
}

func (c *SNMPCapturer) poll(client Client, oid string) (sample, string, error) {
	s := sample{t: c.Now().UTC(), value: math.NaN()}

	pdu, err := client.Get([]string{oid})
	if err != nil {
		if isTimeoutError(err) {
			return s, "", errors.Wrapf(errors.ErrTimeout, "get %s: %v", oid, err)
		}
		return s, "", errors.Wrapf(errors.ErrConnectionFailed, "get %s: %v", oid, err)
	}
	if len(pdu.Variables) == 0 {
		return s, "", errors.Wrap(errors.ErrSNMPError, "no variables returned")
	}

	variable := pdu.Variables[0]
	switch variable.Type {
	case gosnmp.Counter32:
		s.value = float64(gosnmp.ToBigInt(variable.Value).Uint64())
		s.counter, s.wrap = true, 1<<32
	case gosnmp.Counter64:
		s.value = float64(gosnmp.ToBigInt(variable.Value).Uint64())
		s.counter = true
	case gosnmp.Gauge32, gosnmp.Uinteger32, gosnmp.TimeTicks, gosnmp.Integer:
		s.value = float64(gosnmp.ToBigInt(variable.Value).Int64())
	case gosnmp.OpaqueFloat:
		s.value = float64(variable.Value.(float32))
	case gosnmp.OpaqueDouble:
		s.value = variable.Value.(float64)
	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance:
		return s, "", errors.NewNotFound("OID", oid)
	default:
		return s, "", errors.Wrapf(errors.ErrSNMPError, "unsupported type: %v", variable.Type)
	}
	s.ok = true
	return s, variable.Type.String(), nil
}

func anyOK(samples []sample) bool {
	for _, s := range samples {
		if s.ok {
			return true
		}
	}
	return false
}

// toData converts raw samples to a single-trace series. Counters become
// rates between consecutive successful polls: the first sample is NaN and
// a decrease is a Counter32 wrap or, for other counters, a reset (NaN).
func toData(samples []sample) tvar.Data {
	times := make([]time.Time, len(samples))
	values := make([]float64, len(samples))

	var prev *sample
	for i := range samples {
		s := &samples[i]
		times[i] = s.t
		if !s.counter {
			values[i] = s.value
			continue
		}
		values[i] = math.NaN()
		if !s.ok {
			continue
		}
		if prev != nil {
			values[i] = rate(*prev, *s)
		}
		prev = s
	}
	return tvar.Series(times, values)
}

func rate(prev, cur sample) float64 {
	dt := cur.t.Sub(prev.t).Seconds()
	if dt <= 0 {
		return math.NaN()
	}
	delta := cur.value - prev.value
	if delta < 0 {
		if cur.wrap == 0 {
			return math.NaN()
		}
		delta += cur.wrap
	}
	return delta / dt
}

// =============================================================================
// SNMP Client Creation
// =============================================================================

func createClient(cfg *SNMPConfig) *gosnmp.GoSNMP {
	snmp := &gosnmp.GoSNMP{
		Target:  cfg.Host,
		Port:    cfg.Port,
		Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond,
		Retries: int(cfg.Retries),
	}

	// Configure version based on presence of security name
	if cfg.SecurityName != "" {
		snmp.Version = gosnmp.Version3
		snmp.SecurityModel = gosnmp.UserSecurityModel
		snmp.MsgFlags = msgFlags(cfg.SecurityLevel)
		snmp.SecurityParameters = &gosnmp.UsmSecurityParameters{
			UserName:                 cfg.SecurityName,
			AuthenticationProtocol:   authProtocol(cfg.AuthProtocol),
			AuthenticationPassphrase: cfg.AuthPassword,
			PrivacyProtocol:          privProtocol(cfg.PrivProtocol),
			PrivacyPassphrase:        cfg.PrivPassword,
		}
		snmp.ContextName = cfg.ContextName
	} else {
		snmp.Version = gosnmp.Version2c
		snmp.Community = cfg.Community
	}
	return snmp
}

func msgFlags(level string) gosnmp.SnmpV3MsgFlags {
	switch level {
	case "authNoPriv":
		return gosnmp.AuthNoPriv
	case "authPriv":
		return gosnmp.AuthPriv
	default:
		return gosnmp.NoAuthNoPriv
	}
}

func authProtocol(protocol string) gosnmp.SnmpV3AuthProtocol {
	switch protocol {
	case "MD5":
		return gosnmp.MD5
	case "SHA":
		return gosnmp.SHA
	case "SHA224":
		return gosnmp.SHA224
	case "SHA256":
		return gosnmp.SHA256
	case "SHA384":
		return gosnmp.SHA384
	case "SHA512":
		return gosnmp.SHA512
	default:
		return gosnmp.NoAuth
	}
}

func privProtocol(protocol string) gosnmp.SnmpV3PrivProtocol {
	switch protocol {
	case "DES":
		return gosnmp.DES
	case "AES":
		return gosnmp.AES
	case "AES192":
		return gosnmp.AES192
	case "AES256":
		return gosnmp.AES256
	default:
		return gosnmp.NoPriv
	}
}

// gosnmp reports timeouts as plain errors.
func isTimeoutError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded")
}

// String describes the capture target for logs.
func (c *SNMPConfig) String() string {
	return fmt.Sprintf("%s:%d %s", c.Host, c.Port, c.OID)
}
