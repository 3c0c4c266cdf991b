package grid

// AppID identifies the application a payload belongs to. App 0 carries
// non data-bearing transactions.
type AppID uint32

// AppPayload is one transaction's data tagged with its application.
type AppPayload struct {
	AppID AppID
	Data  []byte
}

// LayoutEntry is a contiguous run of Len scalars belonging to AppID.
type LayoutEntry struct {
	AppID AppID
	Len   uint32
}

// Layout lists the application ranges of a grid in order of AppID.
type Layout []LayoutEntry

// Size is the number of scalars occupied by data.
func (l Layout) Size() uint32 {
	var n uint32
	for _, e := range l {
		n += e.Len
	}
	return n
}

// Range returns the scalar range [start, end) of app, if present.
func (l Layout) Range(app AppID) (start, end uint32, ok bool) {
	var offset uint32
	for _, e := range l {
		if e.AppID == app {
			return offset, offset + e.Len, true
		}
		offset += e.Len
	}
	return 0, 0, false
}

// Lookup derives the public index of the layout. App 0 still occupies grid
// space but is not listed.
func (l Layout) Lookup() DataLookup {
	lookup := DataLookup{Size: l.Size()}
	var offset uint32
	for _, e := range l {
		if e.AppID != 0 {
			lookup.Index = append(lookup.Index, LookupItem{AppID: e.AppID, Start: offset})
		}
		offset += e.Len
	}
	return lookup
}

type LookupItem struct {
	AppID AppID
	Start uint32
}

// DataLookup is the index carried in the block header.
type DataLookup struct {
	Size  uint32
	Index []LookupItem
}

// IsEmpty reports whether the block carries no data-bearing transactions.
func (d DataLookup) IsEmpty() bool {
	return len(d.Index) == 0
}

// Range returns the scalar range [start, end) of app.
func (d DataLookup) Range(app AppID) (start, end uint32, ok bool) {
	for i, item := range d.Index {
		if item.AppID != app {
			continue
		}
		end = d.Size
		if i+1 < len(d.Index) {
			end = d.Index[i+1].Start
		}
		return item.Start, end, true
	}
	return 0, 0, false
}

// Layout inverts Lookup. Scalars before the first listed app belong to
// app 0.
func (d DataLookup) Layout() Layout {
	var layout Layout
	var offset uint32
	for i, item := range d.Index {
		if i == 0 && item.Start > 0 {
			layout = append(layout, LayoutEntry{AppID: 0, Len: item.Start})
		}
		end := d.Size
		if i+1 < len(d.Index) {
			end = d.Index[i+1].Start
		}
		layout = append(layout, LayoutEntry{AppID: item.AppID, Len: end - item.Start})
		offset = end
	}
	if offset < d.Size {
		layout = append(layout, LayoutEntry{AppID: 0, Len: d.Size - offset})
	}
	return layout
}
