package metrics

// IME groups the metrics updated by the input method components. A nil
// *IME is valid and records nothing.
type IME struct {
	KeysForwarded        *Counter
	KeysConsumed         *Counter
	StaleEvents          *Counter
	KeymapsReceived      *Counter
	KeymapTransfers      *Counter
	KeymapTransferErrors *Counter
	KeymapTransferTime   *Histogram
	Commits              *Counter
	Grabs                *Counter
	SessionActive        *Gauge
	KeyboardGrabbed      *Gauge
}

// NewIME registers the input method metrics on registry, or on the default
// registry when registry is nil.
func NewIME(registry *Registry) *IME {
	if registry == nil {
		registry = Default()
	}
	return &IME{
		KeysForwarded: registry.Counter("keys_forwarded_total",
			"Key events forwarded to the virtual keyboard"),
		KeysConsumed: registry.Counter("keys_consumed_total",
			"Key events consumed as editing signals"),
		StaleEvents: registry.Counter("stale_events_total",
			"Key and modifier events dropped for a stale serial"),
		KeymapsReceived: registry.Counter("keymaps_received_total",
			"Keymaps received from the keyboard grab"),
		KeymapTransfers: registry.Counter("keymap_transfers_total",
			"Keymaps sent to the virtual keyboard"),
		KeymapTransferErrors: registry.Counter("keymap_transfer_errors_total",
			"Keymap transfers abandoned because shared memory could not be set up"),
		KeymapTransferTime: registry.Histogram("keymap_transfer_seconds",
			"Time spent serializing and sending a keymap", DurationBuckets),
		Commits: registry.Counter("commits_total",
			"Commit requests sent to the compositor"),
		Grabs: registry.Counter("keyboard_grabs_total",
			"Keyboard grabs requested"),
		SessionActive: registry.Gauge("session_active",
			"Whether the input method is currently active"),
		KeyboardGrabbed: registry.Gauge("keyboard_grabbed",
			"Whether the keyboard is currently grabbed"),
	}
}

// ForwardedKey records a key sent to the virtual keyboard.
func (m *IME) ForwardedKey() {
	if m != nil {
		m.KeysForwarded.Inc()
	}
}

// ConsumedKey records a key turned into an editing signal.
func (m *IME) ConsumedKey() {
	if m != nil {
		m.KeysConsumed.Inc()
	}
}

// StaleEvent records an event dropped for its serial.
func (m *IME) StaleEvent() {
	if m != nil {
		m.StaleEvents.Inc()
	}
}

// KeymapReceived records a keymap received on the grab.
func (m *IME) KeymapReceived() {
	if m != nil {
		m.KeymapsReceived.Inc()
	}
}

// KeymapTransfer records a keymap transfer to the virtual keyboard.
func (m *IME) KeymapTransfer(ok bool, seconds float64) {
	if m == nil {
		return
	}
	if !ok {
		m.KeymapTransferErrors.Inc()
		return
	}
	m.KeymapTransfers.Inc()
	m.KeymapTransferTime.Observe(seconds)
}

// Commit records a commit request.
func (m *IME) Commit() {
	if m != nil {
		m.Commits.Inc()
	}
}

// Grabbed records a change of the keyboard grab.
func (m *IME) Grabbed(grabbed bool) {
	if m == nil {
		return
	}
	if grabbed {
		m.Grabs.Inc()
	}
	m.KeyboardGrabbed.SetBool(grabbed)
}

// Active records a change of the activation state.
func (m *IME) Active(active bool) {
	if m != nil {
		m.SessionActive.SetBool(active)
	}
}
