package curriculum

import "strings"

// EngineType tags the structured-input template a task is solved with.
type EngineType string

const (
	EngineMath      EngineType = "MATH_ENGINE"
	EnginePhysics   EngineType = "PHYSICS_ENGINE"
	EngineChemistry EngineType = "CHEMISTRY_ENGINE"
	EngineHistory   EngineType = "HISTORY_ENGINE"
	EngineLanguage  EngineType = "LANGUAGE_ENGINE"
	EngineBiology   EngineType = "BIOLOGY_ENGINE"
	EngineGeography EngineType = "GEOGRAPHY_ENGINE"

	LabLinearEquation    EngineType = "LINEAR_EQUATION_LAB"
	LabWordStructure     EngineType = "WORD_STRUCTURE_LAB"
	LabPressure          EngineType = "PRESSURE_LAB"
	LabHistoryChronology EngineType = "HISTORY_CHRONOLOGY_LAB"
	LabMapScale          EngineType = "MAP_SCALE_LAB"
)

// topicLabs maps topics that have a dedicated lab.
var topicLabs = map[string]EngineType{
	"alg-7-1":  LabLinearEquation,
	"ukr-5-2":  LabWordStructure,
	"phys-7-4": LabPressure,
	"hist-5-1": LabHistoryChronology,
	"geo-6-2":  LabMapScale,
}

// subjectEngines is checked in order; the first keyword found in the
// subject name wins.
var subjectEngines = []struct {
	keywords []string
	engine   EngineType
}{
	{[]string{"алгебра", "геометрія", "математика", "algebra", "geometry", "math"}, EngineMath},
	{[]string{"фізика", "physics"}, EnginePhysics},
	{[]string{"хімія", "chemistry"}, EngineChemistry},
	{[]string{"історія", "history"}, EngineHistory},
	{[]string{"мова", "література", "англійська", "language", "literature", "english"}, EngineLanguage},
	{[]string{"біологія", "природа", "biology", "nature"}, EngineBiology},
	{[]string{"географія", "geography"}, EngineGeography},
}

// EngineFor picks the engine for a topic: its dedicated lab if it has one,
// otherwise by subject name, defaulting to the language engine.
func EngineFor(topicID, subjectName string) EngineType {
	if lab, ok := topicLabs[topicID]; ok {
		return lab
	}
	s := strings.ToLower(subjectName)
	for _, e := range subjectEngines {
		for _, kw := range e.keywords {
			if strings.Contains(s, kw) {
				return e.engine
			}
		}
	}
	return EngineLanguage
}

// IsLab reports whether the engine is a topic-specific lab.
func (e EngineType) IsLab() bool {
	return strings.HasSuffix(string(e), "_LAB")
}
