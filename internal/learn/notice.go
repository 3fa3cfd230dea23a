package learn

// Level grades a notice.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Notice is a transient message for the learner. Side effects report their
// outcome as notices instead of failing the view.
type Notice struct {
	Level Level
	Text  string
}

func info(text string) Notice    { return Notice{Level: LevelInfo, Text: text} }
func success(text string) Notice { return Notice{Level: LevelSuccess, Text: text} }
func warning(text string) Notice { return Notice{Level: LevelWarning, Text: text} }
func failure(text string) Notice { return Notice{Level: LevelError, Text: text} }
