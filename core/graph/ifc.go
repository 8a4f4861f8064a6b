package graph

// IFC class names used across packages. Names are upper case, as written in
// STEP files.
const (
	TypeProject                         = "IFCPROJECT"
	TypeOwnerHistory                    = "IFCOWNERHISTORY"
	TypeGeometricRepresentationContext  = "IFCGEOMETRICREPRESENTATIONCONTEXT"
	TypeUnitAssignment                  = "IFCUNITASSIGNMENT"
	TypeSIUnit                          = "IFCSIUNIT"
	TypeConversionBasedUnit             = "IFCCONVERSIONBASEDUNIT"
	TypeMeasureWithUnit                 = "IFCMEASUREWITHUNIT"
	TypePropertySet                     = "IFCPROPERTYSET"
	TypeElementQuantity                 = "IFCELEMENTQUANTITY"
	TypeRelDefinesByProperties          = "IFCRELDEFINESBYPROPERTIES"
	TypeProductDefinitionShape          = "IFCPRODUCTDEFINITIONSHAPE"
	TypeSite                            = "IFCSITE"
	TypeBuilding                        = "IFCBUILDING"
	TypeBuildingStorey                  = "IFCBUILDINGSTOREY"
	TypeSpace                           = "IFCSPACE"
	TypeRelAggregates                   = "IFCRELAGGREGATES"
	TypeRelContainedInSpatialStructure  = "IFCRELCONTAINEDINSPATIALSTRUCTURE"
	TypeRelReferencedInSpatialStructure = "IFCRELREFERENCEDINSPATIALSTRUCTURE"
)

// siPrefixes maps IfcSIPrefix enumerators to their factor.
var siPrefixes = map[string]float64{
	"EXA":   1e18,
	"PETA":  1e15,
	"TERA":  1e12,
	"GIGA":  1e9,
	"MEGA":  1e6,
	"KILO":  1e3,
	"HECTO": 1e2,
	"DECA":  1e1,
	"DECI":  1e-1,
	"CENTI": 1e-2,
	"MILLI": 1e-3,
	"MICRO": 1e-6,
	"NANO":  1e-9,
	"PICO":  1e-12,
	"FEMTO": 1e-15,
	"ATTO":  1e-18,
}

// ModelContext carries model-wide settings needed by geometry consumers.
type ModelContext struct {
	// Schema is the FILE_SCHEMA identifier, e.g. IFC2X3 or IFC4.
	Schema string
	// LengthScale converts model length units to metres.
	LengthScale float64
	// Precision is the coordinate precision declared by the first geometric
	// representation context, or 0 when absent.
	Precision float64
}

// ModelContext reads units and precision from the graph.
func (g *Graph) ModelContext() ModelContext {
	mc := ModelContext{LengthScale: 1}

	for _, h := range g.Header {
		if h.Name == "FILE_SCHEMA" && len(h.Params) > 0 && len(h.Params[0].Items) > 0 {
			mc.Schema = h.Params[0].Items[0].Str()
		}
	}

	for _, e := range g.OfType(TypeGeometricRepresentationContext) {
		if p, ok := e.Attr(3).Number(); ok {
			mc.Precision = p
			break
		}
	}

	for _, ua := range g.OfType(TypeUnitAssignment) {
		for _, uid := range ua.Attr(0).RefList() {
			u, ok := g.Get(uid)
			if !ok {
				continue
			}
			if scale, ok := g.lengthScale(u); ok {
				mc.LengthScale = scale
				return mc
			}
		}
	}
	return mc
}

func (g *Graph) lengthScale(u *Entity) (float64, bool) {
	switch u.Type {
	case TypeSIUnit:
		// IFCSIUNIT(Dimensions, UnitType, Prefix, Name)
		if u.Attr(1).Text != "LENGTHUNIT" {
			return 0, false
		}
		scale := 1.0
		if p := u.Attr(2); p.Kind == KindEnum {
			if f, ok := siPrefixes[p.Text]; ok {
				scale = f
			}
		}
		return scale, true
	case TypeConversionBasedUnit:
		// IFCCONVERSIONBASEDUNIT(Dimensions, UnitType, Name, ConversionFactor)
		if u.Attr(1).Text != "LENGTHUNIT" {
			return 0, false
		}
		mid, ok := u.RefAt(3)
		if !ok {
			return 0, false
		}
		m, ok := g.Get(mid)
		if !ok || m.Type != TypeMeasureWithUnit {
			return 0, false
		}
		// IFCMEASUREWITHUNIT(ValueComponent, UnitComponent)
		factor, ok := m.Attr(0).Number()
		if !ok {
			return 0, false
		}
		base := 1.0
		if bid, ok := m.RefAt(1); ok {
			if b, ok := g.Get(bid); ok && b != u {
				if s, ok := g.lengthScale(b); ok {
					base = s
				}
			}
		}
		return factor * base, true
	}
	return 0, false
}
