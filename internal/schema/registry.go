package schema

import "fmt"

// VenueID is the numeric identifier for a venue.
type VenueID uint16

// InstrumentID is the numeric identifier for a tradable instrument.
type InstrumentID uint32

// Venue describes a trading venue or broker.
type Venue struct {
	ID   VenueID
	Name string
}

// Instrument describes a tradable equity.
type Instrument struct {
	ID      InstrumentID
	VenueID VenueID
	Symbol  string
}

// Registry stores venue and instrument mappings in a compact form.
type Registry struct {
	venues       []Venue
	instruments  []Instrument
	venueByName  map[string]VenueID
	instBySymbol map[string]InstrumentID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		venueByName:  make(map[string]VenueID),
		instBySymbol: make(map[string]InstrumentID),
	}
}

// AddVenue registers a new venue and returns its ID.
func (r *Registry) AddVenue(name string) (VenueID, error) {
	if name == "" {
		return 0, fmt.Errorf("venue name is empty")
	}
	if id, ok := r.venueByName[name]; ok {
		return id, fmt.Errorf("venue already exists: %s", name)
	}
	id := VenueID(len(r.venues) + 1)
	r.venues = append(r.venues, Venue{ID: id, Name: name})
	r.venueByName[name] = id
	return id, nil
}

// AddInstrument registers a new instrument and returns its ID.
func (r *Registry) AddInstrument(symbol string, venueID VenueID) (InstrumentID, error) {
	if symbol == "" {
		return 0, fmt.Errorf("instrument symbol is empty")
	}
	if venueID == 0 {
		return 0, fmt.Errorf("venue id is invalid")
	}
	if _, ok := r.Venue(venueID); !ok {
		return 0, fmt.Errorf("venue id not found: %d", venueID)
	}
	if id, ok := r.instBySymbol[symbol]; ok {
		return id, fmt.Errorf("instrument already exists: %s", symbol)
	}
	id := InstrumentID(len(r.instruments) + 1)
	r.instruments = append(r.instruments, Instrument{
		ID:      id,
		VenueID: venueID,
		Symbol:  symbol,
	})
	r.instBySymbol[symbol] = id
	return id, nil
}

// Venue returns the venue by ID.
func (r *Registry) Venue(id VenueID) (Venue, bool) {
	if id == 0 || int(id) > len(r.venues) {
		return Venue{}, false
	}
	return r.venues[id-1], true
}

// Instrument returns the instrument by ID.
func (r *Registry) Instrument(id InstrumentID) (Instrument, bool) {
	if id == 0 || int(id) > len(r.instruments) {
		return Instrument{}, false
	}
	return r.instruments[id-1], true
}

// InstrumentCount returns the number of instruments in the registry.
func (r *Registry) InstrumentCount() int {
	return len(r.instruments)
}

// InstrumentAt returns the instrument by zero-based index.
func (r *Registry) InstrumentAt(index int) (Instrument, bool) {
	if index < 0 || index >= len(r.instruments) {
		return Instrument{}, false
	}
	return r.instruments[index], true
}

// VenueIDByName returns the venue ID for a name.
func (r *Registry) VenueIDByName(name string) (VenueID, bool) {
	id, ok := r.venueByName[name]
	return id, ok
}

// InstrumentIDBySymbol returns the instrument ID for a symbol.
func (r *Registry) InstrumentIDBySymbol(symbol string) (InstrumentID, bool) {
	id, ok := r.instBySymbol[symbol]
	return id, ok
}

// SymbolName returns the symbol for an instrument ID, or a placeholder when
// the ID is unknown. Logging helper.
func (r *Registry) SymbolName(id InstrumentID) string {
	inst, ok := r.Instrument(id)
	if !ok {
		return fmt.Sprintf("inst-%d", id)
	}
	return inst.Symbol
}
