package badge

import "github.com/hitoshi/studystreak/internal/model"

// 特殊バッジの条件値
const (
	nightOwlHour      = 21
	earlyBirdHour     = 7
	focusMasterMinute = 120
)

var catalog = []Badge{
	// 連続学習
	{Key: "first_steps", Name: "First Steps", Description: "Complete your very first study session", Icon: "👶",
		Category: CategoryStreak, Tier: TierBronze, Rarity: RarityCommon, Color: "#4285f4",
		Criteria: SessionsAtLeast{Count: 1}},
	{Key: "spark_ignited", Name: "Spark Ignited", Description: "Study for 2 consecutive days", Icon: "✨",
		Category: CategoryStreak, Tier: TierBronze, Rarity: RarityCommon, Color: "#ff9800",
		Criteria: StreakAtLeast{Days: 2}},
	{Key: "flame_keeper", Name: "Flame Keeper", Description: "Study for 3 consecutive days", Icon: "🔥",
		Category: CategoryStreak, Tier: TierBronze, Rarity: RarityCommon, Color: "#f44336",
		Criteria: StreakAtLeast{Days: 3}},
	{Key: "week_warrior", Name: "Week Warrior", Description: "Study for 7 consecutive days", Icon: "⚡",
		Category: CategoryStreak, Tier: TierSilver, Rarity: RarityRare, Color: "#2196f3",
		Criteria: StreakAtLeast{Days: 7}},
	{Key: "fortnight_fighter", Name: "Fortnight Fighter", Description: "Study for 14 consecutive days", Icon: "🛡️",
		Category: CategoryStreak, Tier: TierSilver, Rarity: RarityRare, Color: "#9c27b0",
		Criteria: StreakAtLeast{Days: 14}},
	{Key: "study_champion", Name: "Study Champion", Description: "Study for 30 consecutive days", Icon: "🏆",
		Category: CategoryStreak, Tier: TierGold, Rarity: RarityEpic, Color: "#ffd700",
		Criteria: StreakAtLeast{Days: 30}},
	{Key: "academic_titan", Name: "Academic Titan", Description: "Study for 60 consecutive days", Icon: "👑",
		Category: CategoryStreak, Tier: TierPlatinum, Rarity: RarityEpic, Color: "#e5e4e2",
		Criteria: StreakAtLeast{Days: 60}},
	{Key: "legendary_scholar", Name: "Legendary Scholar", Description: "Study for 100 consecutive days", Icon: "🌟",
		Category: CategoryStreak, Tier: TierLegendary, Rarity: RarityLegendary, Color: "#9400d3", Secret: true,
		Criteria: StreakAtLeast{Days: 100}},

	// 累計時間
	{Key: "quick_learner", Name: "Quick Learner", Description: "Study for 1 hour total", Icon: "⏰",
		Category: CategoryTime, Tier: TierBronze, Rarity: RarityCommon, Color: "#4caf50",
		Criteria: TotalMinutesAtLeast{Minutes: 60}},
	{Key: "study_enthusiast", Name: "Study Enthusiast", Description: "Study for 5 hours total", Icon: "📚",
		Category: CategoryTime, Tier: TierBronze, Rarity: RarityCommon, Color: "#4caf50",
		Criteria: TotalMinutesAtLeast{Minutes: 300}},
	{Key: "knowledge_seeker", Name: "Knowledge Seeker", Description: "Study for 20 hours total", Icon: "🔍",
		Category: CategoryTime, Tier: TierSilver, Rarity: RarityCommon, Color: "#607d8b",
		Criteria: TotalMinutesAtLeast{Minutes: 1200}},
	{Key: "dedicated_student", Name: "Dedicated Student", Description: "Study for 50 hours total", Icon: "🎓",
		Category: CategoryTime, Tier: TierSilver, Rarity: RarityRare, Color: "#3f51b5",
		Criteria: TotalMinutesAtLeast{Minutes: 3000}},
	{Key: "academic_master", Name: "Academic Master", Description: "Study for 100 hours total", Icon: "🧠",
		Category: CategoryTime, Tier: TierGold, Rarity: RarityRare, Color: "#ff9800",
		Criteria: TotalMinutesAtLeast{Minutes: 6000}},
	{Key: "study_savant", Name: "Study Savant", Description: "Study for 200 hours total", Icon: "🌠",
		Category: CategoryTime, Tier: TierPlatinum, Rarity: RarityEpic, Color: "#673ab7",
		Criteria: TotalMinutesAtLeast{Minutes: 12000}},
	{Key: "time_lord", Name: "Time Lord", Description: "Study for 500 hours total", Icon: "⏳",
		Category: CategoryTime, Tier: TierLegendary, Rarity: RarityLegendary, Color: "#e91e63", Secret: true,
		Criteria: TotalMinutesAtLeast{Minutes: 30000}},

	// セッション数
	{Key: "session_starter", Name: "Session Starter", Description: "Complete 10 study sessions", Icon: "▶️",
		Category: CategoryConsistency, Tier: TierBronze, Rarity: RarityCommon, Color: "#4caf50",
		Criteria: SessionsAtLeast{Count: 10}},
	{Key: "regular_learner", Name: "Regular Learner", Description: "Complete 25 study sessions", Icon: "📖",
		Category: CategoryConsistency, Tier: TierSilver, Rarity: RarityCommon, Color: "#2196f3",
		Criteria: SessionsAtLeast{Count: 25}},
	{Key: "study_machine", Name: "Study Machine", Description: "Complete 50 study sessions", Icon: "⚙️",
		Category: CategoryConsistency, Tier: TierSilver, Rarity: RarityRare, Color: "#ff5722",
		Criteria: SessionsAtLeast{Count: 50}},
	{Key: "century_club", Name: "Century Club", Description: "Complete 100 study sessions", Icon: "💯",
		Category: CategoryConsistency, Tier: TierGold, Rarity: RarityRare, Color: "#ffc107",
		Criteria: SessionsAtLeast{Count: 100}},
	{Key: "marathon_mind", Name: "Marathon Mind", Description: "Complete 250 study sessions", Icon: "🏃",
		Category: CategoryConsistency, Tier: TierPlatinum, Rarity: RarityEpic, Color: "#9c27b0",
		Criteria: SessionsAtLeast{Count: 250}},
	{Key: "unstoppable_force", Name: "Unstoppable Force", Description: "Complete 500 study sessions", Icon: "🚀",
		Category: CategoryConsistency, Tier: TierLegendary, Rarity: RarityLegendary, Color: "#e91e63", Secret: true,
		Criteria: SessionsAtLeast{Count: 500}},

	// 科目別
	{Key: "math_regular", Name: "Math Regular", Description: "Complete 10 Math sessions", Icon: "➗",
		Category: CategorySubject, Tier: TierBronze, Rarity: RarityCommon, Color: "#3f51b5",
		Criteria: SubjectSessionsAtLeast{Subject: model.SubjectMath, Count: 10}},
	{Key: "science_regular", Name: "Science Regular", Description: "Complete 10 Science sessions", Icon: "🧪",
		Category: CategorySubject, Tier: TierBronze, Rarity: RarityCommon, Color: "#4caf50",
		Criteria: SubjectSessionsAtLeast{Subject: model.SubjectScience, Count: 10}},
	{Key: "english_regular", Name: "English Regular", Description: "Complete 10 English sessions", Icon: "🔤",
		Category: CategorySubject, Tier: TierBronze, Rarity: RarityCommon, Color: "#ff9800",
		Criteria: SubjectSessionsAtLeast{Subject: model.SubjectEnglish, Count: 10}},
	{Key: "history_regular", Name: "History Regular", Description: "Complete 10 History sessions", Icon: "🏛️",
		Category: CategorySubject, Tier: TierBronze, Rarity: RarityCommon, Color: "#795548",
		Criteria: SubjectSessionsAtLeast{Subject: model.SubjectHistory, Count: 10}},
	{Key: "math_apprentice", Name: "Math Apprentice", Description: "Study Math for 10 hours total", Icon: "🔢",
		Category: CategorySubject, Tier: TierSilver, Rarity: RarityCommon, Color: "#3f51b5",
		Criteria: SubjectMinutesAtLeast{Subject: model.SubjectMath, Minutes: 600}},
	{Key: "science_explorer", Name: "Science Explorer", Description: "Study Science for 10 hours total", Icon: "🔬",
		Category: CategorySubject, Tier: TierSilver, Rarity: RarityCommon, Color: "#4caf50",
		Criteria: SubjectMinutesAtLeast{Subject: model.SubjectScience, Minutes: 600}},
	{Key: "language_master", Name: "Language Master", Description: "Study English for 10 hours total", Icon: "📝",
		Category: CategorySubject, Tier: TierSilver, Rarity: RarityCommon, Color: "#ff9800",
		Criteria: SubjectMinutesAtLeast{Subject: model.SubjectEnglish, Minutes: 600}},
	{Key: "history_scholar", Name: "History Scholar", Description: "Study History for 10 hours total", Icon: "📜",
		Category: CategorySubject, Tier: TierSilver, Rarity: RarityCommon, Color: "#795548",
		Criteria: SubjectMinutesAtLeast{Subject: model.SubjectHistory, Minutes: 600}},

	// 特殊
	{Key: "night_owl", Name: "Night Owl", Description: "Study at or after 9 PM for 5 sessions", Icon: "🦉",
		Category: CategorySpecial, Tier: TierGold, Rarity: RarityRare, Color: "#3f51b5",
		Criteria: TimeOfDaySessionsAtLeast{Hour: nightOwlHour, After: true, Count: 5}},
	{Key: "early_bird", Name: "Early Bird", Description: "Study before 8 AM (7 AM hour included) for 5 sessions", Icon: "🐦",
		Category: CategorySpecial, Tier: TierGold, Rarity: RarityRare, Color: "#ff9800",
		Criteria: TimeOfDaySessionsAtLeast{Hour: earlyBirdHour, After: false, Count: 5}},
	{Key: "weekend_warrior", Name: "Weekend Warrior", Description: "Study on 10 different weekends", Icon: "🏋️",
		Category: CategorySpecial, Tier: TierGold, Rarity: RarityRare, Color: "#e91e63",
		Criteria: WeekendsAtLeast{Count: 10}},
	{Key: "focus_master", Name: "Focus Master", Description: "Complete a 120-minute study session", Icon: "🎯",
		Category: CategorySpecial, Tier: TierGold, Rarity: RarityEpic, Color: "#4caf50",
		Criteria: LongestSessionAtLeast{Minutes: focusMasterMinute}},
	{Key: "diversity_champion", Name: "Diversity Champion", Description: "Study all 4 main subjects in one week", Icon: "🌈",
		Category: CategorySpecial, Tier: TierPlatinum, Rarity: RarityEpic, Color: "#9c27b0",
		Criteria: RecentSubjectsAll{Subjects: []model.Subject{
			model.SubjectMath, model.SubjectScience, model.SubjectEnglish, model.SubjectHistory,
		}}},
}

var byKey = func() map[string]Badge {
	m := make(map[string]Badge, len(catalog))
	for _, b := range catalog {
		m[b.Key] = b
	}
	return m
}()

// Catalog はすべてのバッジ定義を表示順で返す。戻り値は呼び出し側で変更してよい。
func Catalog() []Badge {
	out := make([]Badge, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup はキーに対応するバッジ定義を返す。
func Lookup(key string) (Badge, bool) {
	b, ok := byKey[key]
	return b, ok
}
