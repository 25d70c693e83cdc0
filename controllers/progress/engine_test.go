package progress

import (
	"testing"
	"time"

	"lms/config"
	"lms/database"
	"lms/models"
	"lms/models/course"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:progress_"+t.Name()+"?mode=memory&cache=shared"),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Payment{},
		&course.Course{},
		&course.Module{},
		&course.Content{},
		&course.UserProgress{},
		&course.Enrollment{},
		&course.Exercise{},
		&course.ExerciseSubmission{},
		&course.Certificate{},
	))

	database.Database = database.DbInstance{Db: db}
	config.AppConfig = &config.Config{
		FrontendURL: "https://frontend.test",
		BackendURL:  "https://backend.test",
		JWTKey:      "test-jwt-key",
	}
	return db
}

type fixture struct {
	user     *models.User
	courseID uint
	moduleA  *course.Module
	moduleB  *course.Module
	a0, a1   *course.Content
	b0       *course.Content
}

// seedCourse builds a two-module course: A(a0, a1) then B(b0), all published,
// with an enrolled user.
func seedCourse(t *testing.T, db *gorm.DB) *fixture {
	t.Helper()

	user := &models.User{Name: "Jane", Email: "jane@example.com", IsVerified: true, IsEnrolled: true}
	require.NoError(t, db.Create(user).Error)

	theCourse := &course.Course{Title: "AI Bootcamp", IsPublished: true}
	require.NoError(t, db.Create(theCourse).Error)

	moduleA := &course.Module{CourseID: theCourse.ID, Title: "Module A", OrderIndex: 1, IsPublished: true}
	moduleB := &course.Module{CourseID: theCourse.ID, Title: "Module B", OrderIndex: 2, IsPublished: true}
	require.NoError(t, db.Create(moduleA).Error)
	require.NoError(t, db.Create(moduleB).Error)

	a0 := &course.Content{ModuleID: moduleA.ID, ContentType: course.ContentTypeVideo, Title: "a0", OrderIndex: 1, IsPublished: true}
	a1 := &course.Content{ModuleID: moduleA.ID, ContentType: course.ContentTypePDF, Title: "a1", OrderIndex: 2, IsPublished: true}
	b0 := &course.Content{ModuleID: moduleB.ID, ContentType: course.ContentTypeVideo, Title: "b0", OrderIndex: 1, IsPublished: true}
	require.NoError(t, db.Create(a0).Error)
	require.NoError(t, db.Create(a1).Error)
	require.NoError(t, db.Create(b0).Error)

	enrollment := &course.Enrollment{UserID: user.ID, EnrolledAt: time.Now().UTC()}
	require.NoError(t, db.Create(enrollment).Error)

	return &fixture{user: user, courseID: theCourse.ID, moduleA: moduleA, moduleB: moduleB, a0: a0, a1: a1, b0: b0}
}

func complete(t *testing.T, userID, contentID uint) {
	t.Helper()
	done := true
	_, err := UpdateProgress(userID, contentID, &done, nil, nil)
	require.NoError(t, err)
}

func TestSequentialAccessGate(t *testing.T) {
	db := setupTestDB(t)
	f := seedCourse(t, db)

	// Only the very first item is open initially
	allowed, _ := CanAccessContent(f.user.ID, f.a0.ID)
	assert.True(t, allowed, "first content of the course must be open")

	allowed, reason := CanAccessContent(f.user.ID, f.a1.ID)
	assert.False(t, allowed)
	assert.Equal(t, "Complete the previous content first", reason)

	allowed, reason = CanAccessContent(f.user.ID, f.b0.ID)
	assert.False(t, allowed)
	assert.Equal(t, "Complete the previous module first", reason)

	// a0 done: a1 unlocks, b0 still gated on a1 (last item of module A)
	complete(t, f.user.ID, f.a0.ID)
	allowed, _ = CanAccessContent(f.user.ID, f.a1.ID)
	assert.True(t, allowed)
	allowed, _ = CanAccessContent(f.user.ID, f.b0.ID)
	assert.False(t, allowed)

	// a1 done: b0 unlocks
	complete(t, f.user.ID, f.a1.ID)
	allowed, _ = CanAccessContent(f.user.ID, f.b0.ID)
	assert.True(t, allowed)
}

func TestCompletedContentStaysAccessible(t *testing.T) {
	db := setupTestDB(t)
	f := seedCourse(t, db)

	complete(t, f.user.ID, f.a0.ID)

	allowed, reason := CanAccessContent(f.user.ID, f.a0.ID)
	assert.True(t, allowed, "completed content must stay open for review")
	assert.Equal(t, "Content already completed", reason)
}

func TestGateSkipsEmptyPreviousModule(t *testing.T) {
	db := setupTestDB(t)
	f := seedCourse(t, db)

	// Unpublish everything in module A: b0 has nothing left to gate on
	require.NoError(t, db.Model(&course.Content{}).
		Where("module_id = ?", f.moduleA.ID).
		Update("is_published", false).Error)

	allowed, reason := CanAccessContent(f.user.ID, f.b0.ID)
	assert.True(t, allowed)
	assert.Equal(t, "Previous module has no published content", reason)
}

func TestGateIgnoresUnpublishedContent(t *testing.T) {
	db := setupTestDB(t)
	f := seedCourse(t, db)

	// An unpublished item between a0 and a1 must not participate in gating
	draft := &course.Content{ModuleID: f.moduleA.ID, ContentType: course.ContentTypeRichText,
		Title: "draft", OrderIndex: 10, IsPublished: false}
	require.NoError(t, db.Create(draft).Error)

	allowed, _ := CanAccessContent(f.user.ID, draft.ID)
	assert.False(t, allowed, "unpublished content is never accessible")

	complete(t, f.user.ID, f.a0.ID)
	complete(t, f.user.ID, f.a1.ID)
	allowed, _ = CanAccessContent(f.user.ID, f.b0.ID)
	assert.True(t, allowed, "draft content must not block the next module")
}

func TestUpdateProgressAccumulatesTime(t *testing.T) {
	db := setupTestDB(t)
	f := seedCourse(t, db)

	spent := 60
	pos := 30
	_, err := UpdateProgress(f.user.ID, f.a0.ID, nil, &spent, &pos)
	require.NoError(t, err)

	spent = 45
	pos = 90
	prog, err := UpdateProgress(f.user.ID, f.a0.ID, nil, &spent, &pos)
	require.NoError(t, err)

	assert.Equal(t, 105, prog.TimeSpent, "time spent must accumulate")
	require.NotNil(t, prog.LastPosition)
	assert.Equal(t, 90, *prog.LastPosition, "last position must overwrite")
	assert.False(t, prog.IsCompleted)

	var count int64
	db.Model(&course.UserProgress{}).
		Where("user_id = ? AND content_id = ?", f.user.ID, f.a0.ID).Count(&count)
	assert.EqualValues(t, 1, count, "updates must reuse one row per (user, content)")
}

func TestUncompletionKeepsCompletedAt(t *testing.T) {
	db := setupTestDB(t)
	f := seedCourse(t, db)

	complete(t, f.user.ID, f.a0.ID)

	var prog course.UserProgress
	require.NoError(t, db.Where("user_id = ? AND content_id = ?", f.user.ID, f.a0.ID).First(&prog).Error)
	firstStamp := prog.CompletedAt
	require.NotNil(t, firstStamp)

	undone := false
	_, err := UpdateProgress(f.user.ID, f.a0.ID, &undone, nil, nil)
	require.NoError(t, err)

	require.NoError(t, db.Where("user_id = ? AND content_id = ?", f.user.ID, f.a0.ID).First(&prog).Error)
	assert.False(t, prog.IsCompleted)
	require.NotNil(t, prog.CompletedAt)
	assert.Equal(t, firstStamp.Unix(), prog.CompletedAt.Unix(), "first completion stamp is retained")

	// Re-completing keeps the original stamp too
	complete(t, f.user.ID, f.a0.ID)
	require.NoError(t, db.Where("user_id = ? AND content_id = ?", f.user.ID, f.a0.ID).First(&prog).Error)
	assert.Equal(t, firstStamp.Unix(), prog.CompletedAt.Unix())
}

func TestRecalculateEnrollmentProgress(t *testing.T) {
	db := setupTestDB(t)
	f := seedCourse(t, db)

	pct, err := RecalculateEnrollmentProgress(f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, pct)

	complete(t, f.user.ID, f.a0.ID)
	pct, err = RecalculateEnrollmentProgress(f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 33.33, pct, "1 of 3 published items, rounded to 2 decimals")

	complete(t, f.user.ID, f.a1.ID)
	complete(t, f.user.ID, f.b0.ID)
	pct, err = RecalculateEnrollmentProgress(f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, pct)

	done, err := CheckCourseCompletion(f.user.ID)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestCheckCourseCompletionEmptyCourse(t *testing.T) {
	db := setupTestDB(t)
	f := seedCourse(t, db)

	require.NoError(t, db.Model(&course.Content{}).
		Where("1 = 1").Update("is_published", false).Error)

	done, err := CheckCourseCompletion(f.user.ID)
	require.NoError(t, err)
	assert.False(t, done, "a course with no published content is never complete")
}

func TestMarkCourseCompletedIsOneWay(t *testing.T) {
	db := setupTestDB(t)
	f := seedCourse(t, db)

	require.NoError(t, MarkCourseCompleted(f.user.ID))

	var enrollment course.Enrollment
	require.NoError(t, db.Where("user_id = ?", f.user.ID).First(&enrollment).Error)
	require.NotNil(t, enrollment.CompletedAt)
	firstStamp := *enrollment.CompletedAt
	assert.Equal(t, 100.0, enrollment.ProgressPercentage)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, MarkCourseCompleted(f.user.ID))

	require.NoError(t, db.Where("user_id = ?", f.user.ID).First(&enrollment).Error)
	assert.Equal(t, firstStamp.Unix(), enrollment.CompletedAt.Unix(), "completion stamp must not move")
}

func TestRecalculateAllEnrollmentsKeepsCompletion(t *testing.T) {
	db := setupTestDB(t)
	f := seedCourse(t, db)

	complete(t, f.user.ID, f.a0.ID)
	complete(t, f.user.ID, f.a1.ID)
	complete(t, f.user.ID, f.b0.ID)
	require.NoError(t, MarkCourseCompleted(f.user.ID))

	// Publishing new content lowers the percentage but must not revoke the
	// completion stamp.
	extra := &course.Content{ModuleID: f.moduleB.ID, ContentType: course.ContentTypeVideo,
		Title: "b1", OrderIndex: 2, IsPublished: true}
	require.NoError(t, db.Create(extra).Error)

	updated, err := RecalculateAllEnrollments()
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	var enrollment course.Enrollment
	require.NoError(t, db.Where("user_id = ?", f.user.ID).First(&enrollment).Error)
	assert.Equal(t, 75.0, enrollment.ProgressPercentage)
	assert.NotNil(t, enrollment.CompletedAt, "completion is monotonic")
}

func TestUpdateLastAccessed(t *testing.T) {
	db := setupTestDB(t)
	f := seedCourse(t, db)

	require.NoError(t, UpdateLastAccessed(f.user.ID, f.moduleB.ID))

	var enrollment course.Enrollment
	require.NoError(t, db.Where("user_id = ?", f.user.ID).First(&enrollment).Error)
	require.NotNil(t, enrollment.LastAccessedModule)
	assert.Equal(t, f.moduleB.ID, *enrollment.LastAccessedModule)
	assert.NotNil(t, enrollment.LastAccessedAt)
}
