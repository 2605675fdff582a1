package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/focusnest/progression-service/internal/progression"
)

func TestManagerRecording(t *testing.T) {
	Convey("Given a metrics manager on a private registry", t, func() {
		registry := prometheus.NewRegistry()
		m := NewManager(WithPrometheusRegistry(registry), WithNamespace("test"))

		Convey("When recording progression activity", func() {
			m.ExperienceAwarded(250)
			m.ExperienceAwarded(0)
			m.LevelUp(2)
			m.BadgeUnlocked(progression.BadgeCategorySkill)
			m.ChallengeCompleted(progression.ChallengeDaily)
			m.ChallengeCompleted(progression.ChallengeDaily)
			m.ChallengesReset(progression.ChallengeWeekly, 2)
			m.StoreFailure("add_experience")

			Convey("Then the counters reflect it", func() {
				So(testutil.ToFloat64(m.experienceAwarded), ShouldEqual, 250)
				So(testutil.ToFloat64(m.levelUps), ShouldEqual, 2)
				So(testutil.ToFloat64(m.badgesUnlocked.WithLabelValues("skill")), ShouldEqual, 1)
				So(testutil.ToFloat64(m.challengesCompleted.WithLabelValues("daily")), ShouldEqual, 2)
				So(testutil.ToFloat64(m.challengesOnBoard.WithLabelValues("weekly")), ShouldEqual, 2)
				So(testutil.ToFloat64(m.storeFailures.WithLabelValues("add_experience")), ShouldEqual, 1)
			})

			Convey("Then the handler exposes them", func() {
				rec := httptest.NewRecorder()
				m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(strings.Contains(rec.Body.String(), "test_progression_experience_awarded_total 250"), ShouldBeTrue)
			})
		})
	})
}

func TestManagerDisabled(t *testing.T) {
	Convey("Given a disabled manager", t, func() {
		m := NewManager(WithMetricsEnabled(false))

		Convey("When recording activity", func() {
			m.ExperienceAwarded(10)
			m.LevelUp(1)

			Convey("Then nothing is counted", func() {
				So(testutil.ToFloat64(m.experienceAwarded), ShouldEqual, 0)
				So(testutil.ToFloat64(m.levelUps), ShouldEqual, 0)
			})
		})
	})
}

func TestManagerNaming(t *testing.T) {
	Convey("Given a manager with a custom subsystem", t, func() {
		m := NewManager(WithNamespace("tutor"), WithSubsystem("levels"))

		Convey("When a level up is recorded", func() {
			m.LevelUp(1)

			Convey("Then the registry exposes the prefixed metric name", func() {
				count, err := testutil.GatherAndCount(m.Registry(), "tutor_levels_level_ups_total")
				So(err, ShouldBeNil)
				So(count, ShouldEqual, 1)
			})
		})
	})
}
