package ids

import (
	"fmt"
	"strings"
)

// NamespaceKind is the closed set of Namespace shapes.
type NamespaceKind int

const (
	// NamespaceGlobal has the lowest retrieval priority.
	NamespaceGlobal NamespaceKind = iota
	// NamespaceProject scopes to a named project.
	NamespaceProject
	// NamespaceSession scopes to one session within a project; highest priority.
	NamespaceSession
)

// Namespace is the hierarchical isolation scope used for memory retrieval
// and work-item partitioning. Project is set for Project and Session
// namespaces, SessionID only for Session; Global carries neither.
type Namespace struct {
	Kind      NamespaceKind
	Project   string
	SessionID string
}

// Global is the namespace with no project or session scoping.
func Global() Namespace { return Namespace{Kind: NamespaceGlobal} }

// ProjectNamespace returns a project-scoped namespace.
func ProjectNamespace(name string) Namespace {
	return Namespace{Kind: NamespaceProject, Project: name}
}

// SessionNamespace returns a session-scoped namespace.
func SessionNamespace(project, sessionID string) Namespace {
	return Namespace{Kind: NamespaceSession, Project: project, SessionID: sessionID}
}

// Priority returns the namespace's retrieval priority: Session=3, Project=2,
// Global=1. Higher values win ties during hybrid search boosting.
func (n Namespace) Priority() int {
	switch n.Kind {
	case NamespaceSession:
		return 3
	case NamespaceProject:
		return 2
	default:
		return 1
	}
}

// Boost returns the multiplicative namespace boost applied after hybrid
// score combination: Session×1.20, Project×1.10, Global×1.00.
func (n Namespace) Boost() float64 {
	switch n.Kind {
	case NamespaceSession:
		return 1.20
	case NamespaceProject:
		return 1.10
	default:
		return 1.00
	}
}

// String renders the canonical text form:
// "session:<project>:<session_id>" | "project:<name>" | "global".
func (n Namespace) String() string {
	switch n.Kind {
	case NamespaceSession:
		return fmt.Sprintf("session:%s:%s", n.Project, n.SessionID)
	case NamespaceProject:
		return fmt.Sprintf("project:%s", n.Project)
	default:
		return "global"
	}
}

// ParseNamespace parses the canonical text form produced by String.
func ParseNamespace(s string) (Namespace, error) {
	switch {
	case s == "global":
		return Global(), nil
	case strings.HasPrefix(s, "project:"):
		name := strings.TrimPrefix(s, "project:")
		if name == "" {
			return Namespace{}, fmt.Errorf("ids: empty project name in namespace %q", s)
		}
		return ProjectNamespace(name), nil
	case strings.HasPrefix(s, "session:"):
		rest := strings.TrimPrefix(s, "session:")
		parts := strings.SplitN(rest, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return Namespace{}, fmt.Errorf("ids: malformed session namespace %q", s)
		}
		return SessionNamespace(parts[0], parts[1]), nil
	default:
		return Namespace{}, fmt.Errorf("ids: unrecognized namespace %q", s)
	}
}

// Visible reports whether a memory stored in n can be seen by a reader
// operating in reader: a reader sees its own namespace plus every
// lower-priority ancestor (a session sees session+project+global; a
// project sees project+global; global sees only global).
func (n Namespace) Visible(reader Namespace) bool {
	switch n.Kind {
	case NamespaceGlobal:
		return true
	case NamespaceProject:
		return (reader.Kind == NamespaceProject || reader.Kind == NamespaceSession) &&
			reader.Project == n.Project
	default: // NamespaceSession
		return reader.Kind == NamespaceSession &&
			reader.Project == n.Project && reader.SessionID == n.SessionID
	}
}


