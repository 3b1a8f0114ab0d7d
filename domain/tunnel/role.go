package tunnel

import "fmt"

// Role is either server or client; a tunnel is never both.
type Role int

const (
	UnknownRole Role = iota
	Server
	Client
)

func (r Role) String() string {
	switch r {
	case Server:
		return "server"
	case Client:
		return "client"
	default:
		return "unknown"
	}
}

// ParseRole validates a role string from the config file.
func ParseRole(s string) (Role, error) {
	switch s {
	case "server":
		return Server, nil
	case "client":
		return Client, nil
	default:
		return UnknownRole, fmt.Errorf("%q is not a valid tunnel role", s)
	}
}
