package models

import (
	"reflect"
	"strings"
	"testing"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

// assertFieldType checks that a struct field has the expected Go type.
func assertFieldType(t *testing.T, typ reflect.Type, fieldName, expectedType string) {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	got := f.Type.String()
	if got != expectedType {
		t.Errorf("%s.%s type = %q, want %q", typ.Name(), fieldName, got, expectedType)
	}
}

func TestSOSRequest_Fields(t *testing.T) {
	typ := reflect.TypeOf(SOSRequest{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "ID", "size:32")
	assertGormTag(t, typ, "ReporterID", "not null")
	assertGormTag(t, typ, "ReporterID", "index")
	assertGormTag(t, typ, "Category", "size:16")
	assertGormTag(t, typ, "Description", "type:text")
	assertGormTag(t, typ, "Location", "embedded")
	assertGormTag(t, typ, "Location", "embeddedPrefix:location_")
	assertGormTag(t, typ, "Status", "size:16")
	assertGormTag(t, typ, "Status", "index")
	assertGormTag(t, typ, "AssignedResponderID", "size:64")
	assertGormTag(t, typ, "Version", "default:1")
	assertGormTag(t, typ, "Events", "foreignKey:RequestID")

	assertFieldType(t, typ, "ID", "string")
	assertFieldType(t, typ, "Location", "models.Location")
	assertFieldType(t, typ, "Version", "int")
	assertFieldType(t, typ, "CreatedAt", "time.Time")
	assertFieldType(t, typ, "UpdatedAt", "time.Time")
	assertFieldType(t, typ, "AssignedAt", "*time.Time")
	assertFieldType(t, typ, "ResolvedAt", "*time.Time")
	assertFieldType(t, typ, "Events", "[]models.RequestEvent")
}

func TestLocation_Fields(t *testing.T) {
	typ := reflect.TypeOf(Location{})

	assertGormTag(t, typ, "Longitude", "not null")
	assertGormTag(t, typ, "Latitude", "not null")
	assertGormTag(t, typ, "Address", "size:256")

	assertFieldType(t, typ, "Longitude", "float64")
	assertFieldType(t, typ, "Latitude", "float64")
}

func TestRequestEvent_Fields(t *testing.T) {
	typ := reflect.TypeOf(RequestEvent{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "ID", "autoIncrement")
	assertGormTag(t, typ, "RequestID", "size:32")
	assertGormTag(t, typ, "RequestID", "index")
	assertGormTag(t, typ, "Event", "size:16")
	assertGormTag(t, typ, "ToStatus", "not null")

	assertFieldType(t, typ, "ID", "uint")
	assertFieldType(t, typ, "CreatedAt", "time.Time")
}

func TestResponder_Fields(t *testing.T) {
	typ := reflect.TypeOf(Responder{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "ID", "size:64")
	assertGormTag(t, typ, "DisplayName", "not null")
	assertGormTag(t, typ, "Role", "size:16")
	assertGormTag(t, typ, "Available", "index")
	assertGormTag(t, typ, "Categories", "size:128")
	assertGormTag(t, typ, "CreatedAt", "index")

	assertFieldType(t, typ, "Available", "bool")
	assertFieldType(t, typ, "Latitude", "*float64")
	assertFieldType(t, typ, "Longitude", "*float64")
}

func TestResponder_AvailableHasNoDefault(t *testing.T) {
	// A default:true tag would make GORM replace an explicit false on insert.
	tag := gormTag(t, reflect.TypeOf(Responder{}), "Available")
	if strings.Contains(tag, "default") {
		t.Errorf("Responder.Available gorm tag = %q, must not declare a default", tag)
	}
}

func TestActiveAssignment_Fields(t *testing.T) {
	typ := reflect.TypeOf(ActiveAssignment{})

	assertGormTag(t, typ, "ResponderID", "primaryKey")
	assertGormTag(t, typ, "ResponderID", "size:64")
	assertGormTag(t, typ, "RequestID", "uniqueIndex")
	assertGormTag(t, typ, "RequestID", "not null")

	assertFieldType(t, typ, "AssignedAt", "time.Time")
}

func TestAccount_Fields(t *testing.T) {
	typ := reflect.TypeOf(Account{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "Email", "index")
	assertGormTag(t, typ, "Role", "not null")
	assertGormTag(t, typ, "TokenHash", "size:64")
	assertGormTag(t, typ, "TokenHash", "uniqueIndex")
}

func TestResponder_HasLocation(t *testing.T) {
	lat, lon := 37.77, -122.41

	tests := []struct {
		name string
		r    Responder
		want bool
	}{
		{"both set", Responder{Latitude: &lat, Longitude: &lon}, true},
		{"latitude only", Responder{Latitude: &lat}, false},
		{"longitude only", Responder{Longitude: &lon}, false},
		{"neither", Responder{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.HasLocation(); got != tt.want {
				t.Errorf("HasLocation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResponder_Accepts(t *testing.T) {
	tests := []struct {
		name       string
		categories string
		category   string
		want       bool
	}{
		{"empty list accepts all", "", "Medical", true},
		{"whitespace list accepts all", "  ", "Trapped", true},
		{"listed", "Medical,Trapped", "Trapped", true},
		{"listed with spaces", "Medical, Supplies", "Supplies", true},
		{"case insensitive", "medical", "Medical", true},
		{"not listed", "Medical,Trapped", "Supplies", false},
		{"no substring match", "Supplies", "Supp", false},
		{"empty category accepted", "Medical", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Responder{Categories: tt.categories}
			if got := r.Accepts(tt.category); got != tt.want {
				t.Errorf("Accepts(%q) with %q = %v, want %v", tt.category, tt.categories, got, tt.want)
			}
		})
	}
}
