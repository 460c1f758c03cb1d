package access

import "anoa.com/studentrecords/internal/entity"

var allVisibilities = []entity.AnnouncementVisibility{
	entity.VisibilityAll,
	entity.VisibilityHOD,
	entity.VisibilityTeacher,
	entity.VisibilityGuardian,
	entity.VisibilityStaff,
}

// VisibilitiesFor lists the announcement audiences role belongs to.
func VisibilitiesFor(role entity.Role) []entity.AnnouncementVisibility {
	switch role {
	case entity.RoleAdmin:
		return append([]entity.AnnouncementVisibility(nil), allVisibilities...)
	case entity.RoleHOD:
		return []entity.AnnouncementVisibility{entity.VisibilityAll, entity.VisibilityHOD, entity.VisibilityStaff}
	case entity.RoleTeacher:
		return []entity.AnnouncementVisibility{entity.VisibilityAll, entity.VisibilityTeacher, entity.VisibilityStaff}
	case entity.RoleGuardian:
		return []entity.AnnouncementVisibility{entity.VisibilityAll, entity.VisibilityGuardian, entity.VisibilityStaff}
	}
	return nil
}

// CanSee reports whether role is in the audience of visibility.
func CanSee(role entity.Role, visibility entity.AnnouncementVisibility) bool {
	for _, v := range VisibilitiesFor(role) {
		if v == visibility {
			return true
		}
	}
	return false
}

// CanTarget reports whether role may publish to visibility. HODs cannot address HOD-only announcements.
func CanTarget(role entity.Role, visibility entity.AnnouncementVisibility) bool {
	if !Can(role, ActionPostAnnouncements) {
		return false
	}
	if role == entity.RoleHOD && visibility == entity.VisibilityHOD {
		return false
	}
	for _, v := range allVisibilities {
		if v == visibility {
			return true
		}
	}
	return false
}
