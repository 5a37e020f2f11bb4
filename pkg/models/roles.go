package models

type Role string

const (
	RoleCoach    Role = `coach`
	RoleStudent  Role = `student`
	RolePersonal Role = `personal`
)

func (r Role) Valid() bool {
	switch r {
	case RoleCoach, RoleStudent, RolePersonal:
		return true
	}
	return false
}

// CanManageSchedule reports whether the role owns availability and decides on reservations.
func (r Role) CanManageSchedule() bool {
	return r == RoleCoach || r == RolePersonal
}

// CanBook reports whether the role may request reservations with a coach.
func (r Role) CanBook() bool {
	return r == RoleStudent
}
