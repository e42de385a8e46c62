package service_test

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/iliyamo/edusmart-auth/internal/model"
	"github.com/iliyamo/edusmart-auth/internal/service"
)

func TestAccountLifecycle(t *testing.T) {
	Convey("Given a fresh auth service", t, func() {
		h := newHarness(t)
		ctx := context.Background()

		Convey("Registering a new student succeeds", func() {
			res, err := h.register("a@x.com")
			So(err, ShouldBeNil)
			So(res.Success, ShouldBeTrue)
			So(res.MessageCode, ShouldEqual, service.CodeSuccess)

			acc := h.account(t, res.AccountID)
			So(acc.EmailConfirmed, ShouldBeFalse)
			So(acc.IsActive, ShouldBeTrue)
			So(acc.Key, ShouldNotBeNil)
			So(h.keys.last(), ShouldEqual, *acc.Key)

			doc, err := h.docs.FindByAccountID(ctx, res.AccountID)
			So(err, ShouldBeNil)
			So(doc.UserInformation.FullName(), ShouldEqual, "Ann Lee")
			So(doc.Role, ShouldNotBeNil)
			So(doc.Role.Name, ShouldEqual, model.RoleStudent)

			So(h.profiles.lastCreate().Role, ShouldEqual, byte(model.RoleCodeStudent))
			So(h.profiles.lastCreate().OldUserID, ShouldBeNil)

			Convey("An immediate repeat is refused with a cooldown conflict", func() {
				_, err := h.register("a@x.com")
				So(err, ShouldEqual, service.ErrCooldown)
				So(service.KindOf(err), ShouldEqual, service.KindConflict)
			})

			Convey("Verifying the token confirms the email", func() {
				v, err := h.svc.VerifyAccount(ctx, *acc.Key)
				So(err, ShouldBeNil)
				So(v.Success, ShouldBeTrue)
				So(v.AlreadyConfirmed, ShouldBeFalse)

				acc := h.account(t, res.AccountID)
				So(acc.EmailConfirmed, ShouldBeTrue)
				So(acc.Key, ShouldBeNil)

				doc, _ := h.docs.FindByAccountID(ctx, res.AccountID)
				So(doc.EmailConfirmed, ShouldBeTrue)
				So(doc.Key, ShouldBeNil)

				Convey("Five wrong passwords lock the account", func() {
					for i := 0; i < model.MaxAccessFailedCount; i++ {
						_, err := h.svc.Login(ctx, "a@x.com", "wrong")
						So(err, ShouldEqual, service.ErrInvalidCredentials)
					}
					locked := h.account(t, res.AccountID)
					So(locked.AccessFailedCount, ShouldEqual, 5)
					So(locked.LockoutEnd, ShouldNotBeNil)
					So(locked.LockoutEnd.Sub(h.clock.Now()), ShouldEqual, model.LockoutDuration)

					Convey("The right password during lockout is refused and counts nothing", func() {
						_, err := h.svc.Login(ctx, "a@x.com", strongPassword)
						So(err, ShouldEqual, service.ErrInvalidCredentials)
						So(h.account(t, res.AccountID).AccessFailedCount, ShouldEqual, 5)
					})

					Convey("After the lockout window the right password succeeds and resets the counter", func() {
						h.clock.Advance(model.LockoutDuration + time.Second)
						out, err := h.svc.Login(ctx, "a@x.com", strongPassword)
						So(err, ShouldBeNil)
						So(out.UserID, ShouldEqual, res.AccountID)
						So(out.FullName, ShouldEqual, "Ann Lee")
						So(out.RoleName, ShouldEqual, model.RoleStudent)

						acc := h.account(t, res.AccountID)
						So(acc.AccessFailedCount, ShouldEqual, 0)
						So(acc.LockoutEnd, ShouldBeNil)
					})
				})

				Convey("Registering the confirmed email again is a duplicate", func() {
					_, err := h.register("A@X.com")
					So(err, ShouldEqual, service.ErrDuplicateEmail)
				})
			})
		})
	})
}
